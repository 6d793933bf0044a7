package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init inicializa el logger del proceso con la configuración dada.
// Es idempotente: solo la primera llamada tiene efecto. Los entrypoints
// (servidor, seed) la llaman antes de cualquier log.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L retorna el logger del proceso.
// Si Init() no fue llamado, crea uno por defecto (dev, info): los tests y
// los services pueden loguear sin arrancar el stack completo.
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// Sync flushea cualquier buffer pendiente.
// Debe llamarse con defer en main.go.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}
