package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "auth:\n  jwt_secret: s3cret\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.ListenAddr)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 2*time.Minute, cfg.Matchmaking.TicketTTL)
	assert.Equal(t, "duel", cfg.Matchmaking.DefaultMode)
	assert.Equal(t, 2, cfg.Matchmaking.MatchAttempts)
	assert.Equal(t, 30*time.Second, cfg.Matchmaking.SweepInterval)
	assert.Equal(t, 5, cfg.Matchmaking.PartyMaxSize)
	assert.Equal(t, "moderation", cfg.Enforcement.KeyPrefix)
	assert.Equal(t, "arenaq", cfg.Notify.SubjectPrefix)
	assert.Equal(t, "127.0.0.1", cfg.Notify.EmbeddedHost)
}

func TestEmbeddedNATSHostIgnoresListenAddr(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  listen_addr: 0.0.0.0\nauth:\n  jwt_secret: s3cret\nnotify:\n  embedded_nats: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.ListenAddr)
	assert.Equal(t, "127.0.0.1", cfg.Notify.EmbeddedHost)
}

func TestLoadFileValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  http_port: 9000
auth:
  jwt_secret: s3cret
matchmaking:
  ticket_ttl: 45s
  default_mode: ctf
enforcement:
  banned: [griefer]
  shadow: [smurf]
notify:
  kafka_brokers: [k1:9092, k2:9092]
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.Matchmaking.TicketTTL)
	assert.Equal(t, "ctf", cfg.Matchmaking.DefaultMode)
	assert.Equal(t, []string{"griefer"}, cfg.Enforcement.Banned)
	assert.Equal(t, []string{"smurf"}, cfg.Enforcement.Shadow)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ARENAQ_HTTP_PORT", "7070")
	t.Setenv("ARENAQ_TICKET_TTL", "90s")
	t.Setenv("ARENAQ_REDIS_ADDR", "redis:6379")
	t.Setenv("ARENAQ_KAFKA_BROKERS", "a:1,b:2")

	cfg, err := Load(writeConfig(t, "server:\n  http_port: 9000\nauth:\n  jwt_secret: s3cret\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, 90*time.Second, cfg.Matchmaking.TicketTTL)
	assert.Equal(t, "redis:6379", cfg.Enforcement.RedisAddr)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Notify.KafkaBrokers)
}

func TestMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("ARENAQ_JWT_SECRET", "from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  http_port: 9000\n"))
	assert.ErrorContains(t, err, "jwt_secret")

	_, err = Load(writeConfig(t, "auth:\n  jwt_secret: x\nmatchmaking:\n  party_max_size: 1\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map]\n"))
	assert.ErrorContains(t, err, "parsing config file")
}
