package config

// EnvPrefix is passed to envconfig; every variable below carries it already
// so the prefix itself stays empty and the full names remain greppable.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "MOTORMARKT_DB_DSN"
	EnvDBHost = "MOTORMARKT_DB_HOST"
	EnvDBUser = "MOTORMARKT_DB_USER"
	EnvDBName = "MOTORMARKT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
