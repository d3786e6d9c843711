package config

type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageFile   StorageBackend = "file"
	StorageRedis  StorageBackend = "redis"
)

type StorageConfig interface {
	GetStorageBackend() StorageBackend
	GetStoragePath() string
	GetStorageNamespace() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Storage struct {
	source
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageBackend() StorageBackend {
	switch b := StorageBackend(s.get("STORAGE_BACKEND", string(StorageFile))); b {
	case StorageMemory, StorageFile, StorageRedis:
		return b
	default:
		return StorageFile
	}
}

func (s Storage) GetStoragePath() string {
	return s.get("STORAGE_PATH", "./data/session.json")
}

// GetStorageNamespace is the prefix put in front of every persisted key.
func (s Storage) GetStorageNamespace() string {
	return s.get("STORAGE_NAMESPACE", "civic_console_")
}

func (s Storage) GetRedisAddr() string {
	return s.get("REDIS_ADDR", "localhost:6379")
}

func (s Storage) GetRedisPassword() string {
	return s.get("REDIS_PASSWORD", "")
}

func (s Storage) GetRedisDB() int {
	return s.integer("REDIS_DB", 0)
}
