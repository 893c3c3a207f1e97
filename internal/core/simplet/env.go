package simplet

import "strconv"

// =============================================================================
// Environment Variable Names
// =============================================================================

const (
	EnvAppEnv         = "APP_ENV"
	EnvAppSecret      = "APP_SECRET"
	EnvAppURL         = "APP_URL"
	EnvAPIPort        = "API_PORT"
	EnvAPIHost        = "API_HOST"
	EnvMySQLHost      = "MYSQL_HOST"
	EnvMySQLPort      = "MYSQL_PORT"
	EnvMySQLDB        = "MYSQL_DB"
	EnvMySQLUser      = "MYSQL_USER"
	EnvMySQLPassword  = "MYSQL_PASSWORD"
	EnvMySQLPool      = "MYSQL_POOL"
	EnvAdminWallet    = "ADMIN_WALLET"
	EnvApillonKey     = "APILLON_KEY"
	EnvApillonSecret  = "APILLON_SECRET"
	EnvCollectionUUID = "COLLECTION_UUID"
	EnvSMTPHost       = "SMTP_HOST"
	EnvSMTPPort       = "SMTP_PORT"
	EnvSMTPUsername   = "SMTP_USERNAME"
	EnvSMTPPassword   = "SMTP_PASSWORD"
	EnvSMTPEmailFrom  = "SMTP_EMAIL_FROM"
	EnvSMTPNameFrom   = "SMTP_NAME_FROM"

	// Variables understood by the MySQL image.
	EnvMySQLRootPassword = "MYSQL_ROOT_PASSWORD"
	EnvMySQLDatabase     = "MYSQL_DATABASE"
)

// Infrastructure wiring. These are fixed and never taken from user input.
const (
	AppEnvProduction = "production"
	APIPort          = 3000
	APIHost          = "0.0.0.0"
	MySQLPort        = 3306
	MySQLUser        = "root"
	MySQLPool        = 5

	DefaultAppSecret     = "secret"
	DefaultAppURL        = "http://localhost:3000"
	DefaultMySQLDB       = "poa"
	DefaultMySQLPassword = "root"
)

// optionalKeys are copied into the application environment only when present
// in the override mapping.
var optionalKeys = []string{
	EnvAdminWallet,
	EnvApillonKey,
	EnvApillonSecret,
	EnvCollectionUUID,
	EnvSMTPHost,
	EnvSMTPPort,
	EnvSMTPUsername,
	EnvSMTPPassword,
	EnvSMTPEmailFrom,
	EnvSMTPNameFrom,
}

// =============================================================================
// Environment Builder
// =============================================================================

// EnvVars flattens the common configuration into environment overrides.
// Only fields that are set produce a key; the result is sparse and must be
// treated as overrides, not the final environment.
func (c CommonConfig) EnvVars() map[string]string {
	env := make(map[string]string)

	setIf(env, EnvAppSecret, c.AppSecret)
	setIf(env, EnvAppURL, c.AppURL)
	setIf(env, EnvMySQLPassword, c.MySQLPassword)
	setIf(env, EnvMySQLDB, c.MySQLDB)
	setIf(env, EnvAdminWallet, c.AdminWallet)
	setIf(env, EnvApillonKey, c.ApillonKey)
	setIf(env, EnvApillonSecret, c.ApillonSecret)

	if smtp := c.SMTP; smtp != nil {
		env[EnvSMTPHost] = smtp.Host
		env[EnvSMTPPort] = smtp.Port
		env[EnvSMTPUsername] = smtp.Username
		env[EnvSMTPPassword] = smtp.Password
		env[EnvSMTPEmailFrom] = smtp.EmailFrom
		env[EnvSMTPNameFrom] = smtp.NameFrom
	}

	return env
}

// BuildEnv flattens a deployment configuration into environment overrides,
// adding COLLECTION_UUID for kinds that carry a collection.
func BuildEnv(cfg DeploymentConfig) map[string]string {
	env := cfg.Common.EnvVars()
	if cfg.Kind.HasCollection() {
		setIf(env, EnvCollectionUUID, cfg.CollectionUUID)
	}
	return env
}

// AppEnvironment wires the final application container environment: fixed
// infrastructure values and defaults, with overrides applied where present.
// MYSQL_HOST always comes from the kind, never from overrides.
func AppEnvironment(kind Kind, overrides map[string]string) map[string]string {
	env := map[string]string{
		EnvAppEnv:        AppEnvProduction,
		EnvAppSecret:     valueOr(overrides, EnvAppSecret, DefaultAppSecret),
		EnvAppURL:        valueOr(overrides, EnvAppURL, DefaultAppURL),
		EnvAPIPort:       strconv.Itoa(APIPort),
		EnvAPIHost:       APIHost,
		EnvMySQLHost:     kind.DatabaseHost(),
		EnvMySQLPort:     strconv.Itoa(MySQLPort),
		EnvMySQLDB:       valueOr(overrides, EnvMySQLDB, DefaultMySQLDB),
		EnvMySQLUser:     MySQLUser,
		EnvMySQLPassword: valueOr(overrides, EnvMySQLPassword, DefaultMySQLPassword),
		EnvMySQLPool:     strconv.Itoa(MySQLPool),
	}

	for _, key := range optionalKeys {
		if v, ok := overrides[key]; ok {
			env[key] = v
		}
	}

	return env
}

// DatabaseEnvironment returns the environment for the MySQL container.
func DatabaseEnvironment(overrides map[string]string) map[string]string {
	return map[string]string{
		EnvMySQLRootPassword: valueOr(overrides, EnvMySQLPassword, DefaultMySQLPassword),
		EnvMySQLDatabase:     valueOr(overrides, EnvMySQLDB, DefaultMySQLDB),
	}
}

func setIf(env map[string]string, key string, value *string) {
	if value != nil {
		env[key] = *value
	}
}

func valueOr(env map[string]string, key, fallback string) string {
	if v, ok := env[key]; ok {
		return v
	}
	return fallback
}
