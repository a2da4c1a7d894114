// @title Comment Dedup API
// @version 1.0
// @description Пакетная дедупликация свободных текстовых комментариев: запуск сессий, прогресс, отчеты и выгрузка.

// @BasePath /api
// @schemes http

package main

import (
	"commentdedup/internal/cli"
)

func main() {
	cli.Execute()
}
