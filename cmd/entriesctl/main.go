// entriesctl административные команды сервиса записей: миграции, выгрузка, восстановление, очистка курса
package main

import (
	"os"

	"CourseEntries/pkg/logger"
)

func main() {
	err := rootCommand().Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
