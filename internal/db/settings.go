package db

import (
    "context"
    "database/sql"
)

// GetSetting reads a single admin key-value setting, returning def if the
// key is absent. Grounded in the original SettingService.get_value(key,
// default) pattern: provider drivers call this for their credential keys
// on every Configured()/Search() call, so each dispatch iteration sees the
// current values.
func GetSetting(ctx context.Context, db *sql.DB, key string, def string) (string, error) {
    var value string
    err := db.QueryRowContext(ctx, "SELECT value FROM settings WHERE `key` = ?", key).Scan(&value)
    if err == sql.ErrNoRows {
        return def, nil
    }
    if err != nil {
        return def, err
    }
    return value, nil
}

// SetSetting upserts an admin key-value setting.
func SetSetting(ctx context.Context, db *sql.DB, key string, value string) error {
    _, err := db.ExecContext(ctx,
        "INSERT INTO settings (`key`, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)",
        key, value)
    return err
}
