package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPConfig — параметры подключения к SFTP-серверу.
type SFTPConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	PrivateKeyPath string
	// KnownHostsPath — файл known_hosts для проверки ключа сервера
	KnownHostsPath string
	// InsecureHostKey отключает проверку ключа сервера
	InsecureHostKey bool
	// Root — корневая директория хранилища на сервере
	Root    string
	Timeout time.Duration
}

// SFTPStore — хранилище на удалённом сервере по SFTP.
// Подключение устанавливается при первом обращении и пересоздаётся
// после обрыва соединения.
type SFTPStore struct {
	cfg    SFTPConfig
	auth   []ssh.AuthMethod
	hostCB ssh.HostKeyCallback
	logger *slog.Logger

	mu     sync.Mutex
	conn   *ssh.Client
	client *sftp.Client
}

// NewSFTPStore создаёт SFTP-хранилище. Ключи и known_hosts читаются сразу,
// сетевое подключение откладывается до первой операции.
func NewSFTPStore(cfg SFTPConfig, logger *slog.Logger) (*SFTPStore, error) {
	auth, err := sftpAuthMethods(cfg)
	if err != nil {
		return nil, err
	}
	hostCB, err := sftpHostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &SFTPStore{
		cfg:    cfg,
		auth:   auth,
		hostCB: hostCB,
		logger: logger.With(slog.String("component", "sftp_store")),
	}, nil
}

// NewSFTPStoreWithClient создаёт хранилище поверх готовой SFTP-сессии.
// Используется в тестах с сервером pkg/sftp без SSH.
func NewSFTPStoreWithClient(client *sftp.Client, root string, logger *slog.Logger) *SFTPStore {
	if root == "" {
		root = "."
	}
	return &SFTPStore{
		cfg:    SFTPConfig{Root: root},
		client: client,
		logger: logger.With(slog.String("component", "sftp_store")),
	}
}

func sftpAuthMethods(cfg SFTPConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cfg.PrivateKeyPath != "" {
		data, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения приватного ключа %s: %w", cfg.PrivateKeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора приватного ключа: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("не задан ни пароль, ни приватный ключ SFTP")
	}
	return methods, nil
}

func sftpHostKeyCallback(cfg SFTPConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // явно включено конфигурацией
	}
	if cfg.KnownHostsPath == "" {
		return nil, errors.New("не задан known_hosts для проверки ключа SFTP-сервера")
	}
	cb, err := knownhosts.New(cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения known_hosts %s: %w", cfg.KnownHostsPath, err)
	}
	return cb, nil
}

// Backend возвращает имя бэкенда.
func (s *SFTPStore) Backend() string { return "sftp" }

// sftpClient возвращает активный клиент, подключаясь при необходимости.
func (s *SFTPStore) sftpClient(ctx context.Context) (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	sshCfg := &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            s.auth,
		HostKeyCallback: s.hostCB,
		Timeout:         s.cfg.Timeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var d net.Dialer
	netConn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к SFTP %s: %w", addr, err)
	}

	// Таймаут на SSH handshake
	_ = netConn.SetDeadline(time.Now().Add(s.cfg.Timeout))
	c, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshCfg)
	if err != nil {
		_ = netConn.Close()
		return nil, fmt.Errorf("ошибка SSH handshake с %s: %w", addr, err)
	}
	_ = netConn.SetDeadline(time.Time{})

	conn := ssh.NewClient(c, chans, reqs)
	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ошибка инициализации SFTP-сессии: %w", err)
	}

	s.conn = conn
	s.client = client
	s.logger.Info("SFTP-соединение установлено",
		slog.String("addr", addr),
		slog.String("root", s.cfg.Root),
	)
	return client, nil
}

// checkConn сбрасывает соединение, если ошибка говорит о его обрыве.
func (s *SFTPStore) checkConn(client *sftp.Client, err error) {
	if err == nil || !isConnectionError(err) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != client {
		return
	}
	_ = s.closeLocked()
	s.logger.Warn("SFTP-соединение сброшено", slog.String("error", err.Error()))
}

func isConnectionError(err error) bool {
	var netErr net.Error
	return errors.Is(err, sftp.ErrSSHFxConnectionLost) ||
		errors.Is(err, sftp.ErrSSHFxNoConnection) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &netErr)
}

// Close закрывает SFTP-сессию и SSH-соединение.
func (s *SFTPStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *SFTPStore) closeLocked() error {
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	s.client = nil
	s.conn = nil
	return errors.Join(errs...)
}

func (s *SFTPStore) remotePath(key string) string {
	return path.Join(s.cfg.Root, key)
}

// Exists сообщает, существует ли объект.
func (s *SFTPStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	client, err := s.sftpClient(ctx)
	if err != nil {
		return false, err
	}

	info, err := client.Stat(s.remotePath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		s.checkConn(client, err)
		return false, fmt.Errorf("ошибка проверки объекта %s: %w", key, err)
	}
	return !info.IsDir(), nil
}

// Put записывает содержимое во временный файл и публикует его под key.
// Занятый ключ — ErrExist.
func (s *SFTPStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	client, err := s.sftpClient(ctx)
	if err != nil {
		return 0, err
	}

	target := s.remotePath(key)
	if err := client.MkdirAll(path.Dir(target)); err != nil {
		s.checkConn(client, err)
		return 0, fmt.Errorf("ошибка создания директории для %s: %w", key, err)
	}

	tmp := s.remotePath(tempKey(key))
	f, err := client.Create(tmp)
	if err != nil {
		s.checkConn(client, err)
		return 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, contextReader{ctx: ctx, r: r})
	if err != nil {
		_ = f.Close()
		_ = client.Remove(tmp)
		s.checkConn(client, err)
		return 0, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = client.Remove(tmp)
		s.checkConn(client, err)
		return 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := s.publish(client, tmp, target); err != nil {
		_ = client.Remove(tmp)
		if errors.Is(err, ErrExist) {
			return 0, fmt.Errorf("%w: %s", ErrExist, key)
		}
		s.checkConn(client, err)
		return 0, fmt.Errorf("ошибка публикации объекта %s: %w", key, err)
	}
	return size, nil
}

// publish делает временный файл видимым под target без перезаписи:
// жёсткая ссылка (hardlink@openssh.com) и удаление временного имени.
// Если сервер не поддерживает hardlink, используется SSH_FXP_RENAME,
// который на OpenSSH не заменяет существующий файл. В SFTPv3 нет отдельного
// кода «файл существует», поэтому занятость target проверяется через Stat.
func (s *SFTPStore) publish(client *sftp.Client, tmp, target string) error {
	err := client.Link(tmp, target)
	if err == nil {
		if rmErr := client.Remove(tmp); rmErr != nil {
			s.logger.Warn("Не удалось удалить временный файл",
				slog.String("path", tmp),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil
	}

	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) && statusErr.FxCode() == sftp.ErrSSHFxOpUnsupported {
		err = client.Rename(tmp, target)
		if err == nil {
			return nil
		}
	}

	if _, statErr := client.Stat(target); statErr == nil {
		return ErrExist
	}
	return err
}

// Open открывает объект для чтения.
func (s *SFTPStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	client, err := s.sftpClient(ctx)
	if err != nil {
		return nil, err
	}

	f, err := client.Open(s.remotePath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, key)
		}
		s.checkConn(client, err)
		return nil, fmt.Errorf("ошибка открытия объекта %s: %w", key, err)
	}
	return f, nil
}

// Size возвращает размер объекта.
func (s *SFTPStore) Size(ctx context.Context, key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	client, err := s.sftpClient(ctx)
	if err != nil {
		return 0, err
	}

	info, err := client.Stat(s.remotePath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotExist, key)
		}
		s.checkConn(client, err)
		return 0, fmt.Errorf("ошибка получения размера %s: %w", key, err)
	}
	return info.Size(), nil
}

// Delete удаляет объект; отсутствие объекта не ошибка.
func (s *SFTPStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	client, err := s.sftpClient(ctx)
	if err != nil {
		return err
	}

	if err := client.Remove(s.remotePath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.checkConn(client, err)
		return fmt.Errorf("ошибка удаления объекта %s: %w", key, err)
	}
	return nil
}

// List рекурсивно перечисляет объекты под prefix.
func (s *SFTPStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := validateKey(prefix); err != nil {
		return nil, err
	}
	client, err := s.sftpClient(ctx)
	if err != nil {
		return nil, err
	}

	rootPrefix := strings.TrimSuffix(s.remotePath(""), "/") + "/"
	if s.cfg.Root == "." {
		rootPrefix = ""
	}

	var objects []ObjectInfo
	walker := client.Walk(s.remotePath(prefix))
	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := walker.Err(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			s.checkConn(client, err)
			return nil, fmt.Errorf("ошибка перечисления объектов %s: %w", prefix, err)
		}
		info := walker.Stat()
		if info.IsDir() || isTempKey(walker.Path()) {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:     strings.TrimPrefix(walker.Path(), rootPrefix),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Capacity возвращает ёмкость файловой системы сервера (statvfs@openssh.com).
func (s *SFTPStore) Capacity(ctx context.Context) (int64, int64, error) {
	client, err := s.sftpClient(ctx)
	if err != nil {
		return 0, 0, err
	}

	vfs, err := client.StatVFS(s.cfg.Root)
	if err != nil {
		s.checkConn(client, err)
		return 0, 0, fmt.Errorf("%w: statvfs: %v", ErrCapacityUnknown, err)
	}
	return int64(vfs.TotalSpace()), int64(vfs.FreeSpace()), nil //nolint:gosec // размеры ФС помещаются в int64
}
