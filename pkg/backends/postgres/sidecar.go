package postgres

import (
	"context"
	"encoding/json"
	"os"
	"time"
)

// sidecar is the small diagnostics file written next to the project: the
// last successful connection and the table inventory at that moment. It
// is never read back by the core; operators use it to see what the
// backend last looked like without a live connection.
type sidecar struct {
	Host        string    `json:"host"`
	Port        int       `json:"port,omitempty"`
	Database    string    `json:"database"`
	Username    string    `json:"username,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	Tables      []string  `json:"tables"`
}

// writeSidecar records connection info and table inventory. The sidecar
// path comes from the config Path field, unused by network backends
// otherwise; no path means no sidecar.
func (b *Backend) writeSidecar(ctx context.Context) error {
	if b.Cfg.Path == "" {
		return nil
	}

	tables, err := b.ListTables(ctx)
	if err != nil {
		return err
	}

	sc := sidecar{
		Host:        b.Cfg.Host,
		Port:        b.Cfg.Port,
		Database:    b.Cfg.Database,
		Username:    b.Cfg.Username,
		ConnectedAt: time.Now().UTC(),
		Tables:      tables,
	}

	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.Cfg.Path, data, 0o644)
}
