package app

// Command はvouchdeskの起動モードを表す。
type Command string

const (
	// CommandServe はダッシュボードサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの掃除だけを行うワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はセッションテーブルのマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを確認する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch cmd := Command(args[0]); cmd {
	case CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck:
		return cmd
	default:
		return CommandServe
	}
}
