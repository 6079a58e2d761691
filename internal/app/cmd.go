package app

// Command はプロセスの起動モード。
type Command string

const (
	// CommandServe は画面とAPIを提供するHTTPサーバー。
	CommandServe Command = "serve"
	// CommandWorker は保存済みブラウザセッションの定期削除のみを行う。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマを最新にして終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの /health を叩いて終了する。
	// distrolessイメージにはcurlが無いため、Dockerのヘルスチェックから使う。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はos.Args[1:]の先頭からサブコマンドを決める。
// 2番目以降の引数は無視する。不明なサブコマンドはserveとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
