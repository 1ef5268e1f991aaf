package version

import "fmt"

const serviceName = "procurement-service"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

func GetVersion() string { return version }

func GetCommit() string { return commit }

func GetDate() string { return date }

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}

// ClientID идентифицирует сервис во внешних системах (Kafka client.id).
func ClientID() string {
	return serviceName + "-" + version
}
