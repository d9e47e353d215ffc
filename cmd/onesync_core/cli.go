package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/onesync/clonecore/pkg/cfxinterface"
)

const usage = `usage:
  onesync_core version
  onesync_core demo [players] [ticks]
  onesync_core call <command>`

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Println(usage)
		return
	}

	switch strings.ToLower(args[0]) {
	case "version":
		fmt.Println(cfxinterface.Call(":VERSION:"))
	case "call":
		if len(args) < 2 {
			fmt.Println(usage)
			os.Exit(2)
		}
		if err := bootstrap(cfxinterface.ModuleDir()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(cfxinterface.Call(args[1]))
		shutdown()
	case "demo":
		cfg := demoConfig{Dir: cfxinterface.ModuleDir(), Players: 40, Ticks: 20}
		if len(args) > 1 {
			cfg.Players = atoiOr(args[1], cfg.Players)
		}
		if len(args) > 2 {
			cfg.Ticks = atoiOr(args[2], cfg.Ticks)
		}
		_, err := runDemo(cfg, os.Stdout)
		shutdown()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	default:
		fmt.Println(usage)
		os.Exit(2)
	}
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
