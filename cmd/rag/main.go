// Package main is the entry point for the Learning RAG Service.
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/kart-io/learning-rag/cmd/rag/app"
)

func main() {
	app.NewApp().Run()
}
