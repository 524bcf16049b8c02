package app

import (
	"fmt"
	"io"
)

// Command はアプリケーションの起動モード。
type Command string

const (
	// CommandServe はHTTPサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションのクリーンアップを定期実行する。
	CommandWorker Command = "worker"
	// CommandMigrate は未適用のマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの /health を確認する。distrolessイメージ用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp はサブコマンドの一覧を表示する。
	CommandHelp Command = "help"
)

// commandUsage は表示順に並べたサブコマンドの説明。
var commandUsage = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "start the web server (default)"},
	{CommandWorker, "delete expired sessions periodically"},
	{CommandMigrate, "apply database migrations and exit"},
	{CommandHealthcheck, "probe /health of a running server"},
	{CommandHelp, "show this message"},
}

// ParseCommand は先頭の引数からサブコマンドを決める。
// 引数が空、または未知のサブコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	switch arg := args[0]; arg {
	case "-h", "--help":
		return CommandHelp
	default:
		for _, u := range commandUsage {
			if string(u.cmd) == arg {
				return u.cmd
			}
		}
		return CommandServe
	}
}

// PrintUsage はサブコマンドの一覧をwに書き出す。
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: todoman [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, u := range commandUsage {
		fmt.Fprintf(w, "  %-12s %s\n", u.cmd, u.desc)
	}
}
