// Command notesapp はノートアプリのAPIサーバー、ワーカー、マイグレーションを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/notesapp/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "notesapp: %v\n", err)
		os.Exit(1)
	}
}
