package main

import (
	"fmt"
	"os"

	"github.com/John-Robertt/wallpipe/internal/config"
)

func main() {
	c := newCLI(os.Stdout, os.Stderr)
	if err := c.root().Execute(); err != nil {
		if code := config.Code(err); code != "" {
			fmt.Fprintf(os.Stderr, "配置错误（%s）：%v\n", code, err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "错误：%v\n", err)
		os.Exit(1)
	}
}
