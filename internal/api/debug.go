package api

import (
	"net/http"
	"time"

	"fieldops/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                  c.Port,
			"DB_DRIVER":             c.DBDriver,
			"AUTH_MODE":             c.AuthMode,
			"ALLOW_ORIGINS":         c.AllowOrigins,
			"RATE_RPS":              c.RateRPS,
			"RATE_BURST":            c.RateBurst,
			"WEBHOOK_MAX_ATTEMPTS":  c.WebhookMaxAttempts,
			"ENFORCE_CONFLICTS":     c.EnforceConflicts,
			"START_HORIZON_DAYS":    c.StartHorizonDays,
			"DELETE_RETENTION_DAYS": c.DeleteRetentionDays,
			"MAX_SHIFT_HOURS":       c.MaxShiftHours,
			"SIDE_EFFECT_ATTEMPTS":  c.SideEffectAttempts,
			"HAS_DATABASE_URL":      c.DatabaseURL != "",
			"HAS_REDIS_URL":         c.RedisURL != "",
		},
		"maintenanceRules": s.Evaluator.Rules(),
	})
}
