package api

import "log"

// Виды уведомлений для UI-sink'а.
const (
	NotifyError   = "error"
	NotifySuccess = "success"
	NotifyInfo    = "info"
)

// Notifier — односторонний sink пользовательских уведомлений. Fire-and-forget:
// логика никогда не ветвится по результату уведомления.
type Notifier interface {
	Notify(kind, message string)
}

// LogNotifier пишет уведомления в лог — дефолт для сервера без фронта.
type LogNotifier struct{}

func (LogNotifier) Notify(kind, message string) {
	log.Printf("[notify:%s] %s", kind, message)
}
