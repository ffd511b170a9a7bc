package db

import (
    "context"
    "database/sql"
    "fmt"

    "github.com/kargodata/recherche-orchestrator/pkg/logger"
)

// InitializeDatabase resets (optionally) and recreates the database schema
// directly, bypassing golang-migrate. It backs the worker CLI's --init-db
// convenience flag; production deployments should prefer
// RunDatabaseMigrations so schema changes stay versioned.
func InitializeDatabase(ctx context.Context, db *sql.DB, dropExisting bool) error {
    log := logger.WithContext(ctx)

    if dropExisting {
        log.Warn("Dropping existing tables and data...")
        if err := dropAllTables(ctx, db); err != nil {
            return fmt.Errorf("failed to drop existing tables: %w", err)
        }
    }

    log.Info("Creating database schema...")

    if err := createCoreTables(ctx, db); err != nil {
        return fmt.Errorf("failed to create core tables: %w", err)
    }

    if err := insertInitialData(ctx, db); err != nil {
        return fmt.Errorf("failed to insert initial data: %w", err)
    }

    log.Info("Database initialization completed successfully")
    return nil
}

func dropAllTables(ctx context.Context, db *sql.DB) error {
    if _, err := db.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
        return err
    }

    rows, err := db.QueryContext(ctx, `
        SELECT table_name
        FROM information_schema.tables
        WHERE table_schema = DATABASE()
    `)
    if err != nil {
        return err
    }
    defer rows.Close()

    var tables []string
    for rows.Next() {
        var tableName string
        if err := rows.Scan(&tableName); err != nil {
            continue
        }
        tables = append(tables, tableName)
    }

    for _, table := range tables {
        if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS `%s`", table)); err != nil {
            logger.WithContext(ctx).WithError(err).WithField("table", table).Warn("Failed to drop table")
        }
    }

    if _, err := db.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1"); err != nil {
        return err
    }

    return nil
}

func createCoreTables(ctx context.Context, db *sql.DB) error {
    queries := []string{
        `CREATE TABLE IF NOT EXISTS partners (
            id CHAR(36) PRIMARY KEY,
            name VARCHAR(200) NOT NULL,
            base_fee_eur DECIMAL(10,4) NOT NULL DEFAULT 0.50,
            per_result_standard DECIMAL(10,4) NOT NULL DEFAULT 0.05,
            per_result_premium DECIMAL(10,4) NOT NULL DEFAULT 0.12,
            per_result_komplett DECIMAL(10,4) NOT NULL DEFAULT 0.18,
            rate_limit_per_minute INT NOT NULL DEFAULT 60,
            rate_limit_per_hour INT NOT NULL DEFAULT 1000,
            rate_limit_per_day INT NOT NULL DEFAULT 10000,
            suspended BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        `CREATE TABLE IF NOT EXISTS billing_accounts (
            id CHAR(36) PRIMARY KEY,
            partner_id CHAR(36) NOT NULL UNIQUE,
            balance_cents BIGINT NOT NULL DEFAULT 0,
            warning_threshold_cents BIGINT NOT NULL DEFAULT 1000,
            credit_limit_cents BIGINT NOT NULL DEFAULT 0,
            suspended BOOLEAN NOT NULL DEFAULT FALSE,
            suspended_reason VARCHAR(255),
            warning_sent_at TIMESTAMP NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
            FOREIGN KEY (partner_id) REFERENCES partners(id) ON DELETE CASCADE
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        `CREATE TABLE IF NOT EXISTS credit_transactions (
            id CHAR(36) PRIMARY KEY,
            billing_account_id CHAR(36) NOT NULL,
            type ENUM('DEBIT', 'CREDIT', 'REFUND') NOT NULL,
            amount_cents BIGINT NOT NULL,
            balance_after_cents BIGINT NOT NULL,
            description VARCHAR(500),
            reference_type VARCHAR(50),
            reference_id VARCHAR(100),
            actor VARCHAR(100) NOT NULL DEFAULT 'system',
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            INDEX idx_account (billing_account_id),
            INDEX idx_created (created_at),
            INDEX idx_type (type),
            FOREIGN KEY (billing_account_id) REFERENCES billing_accounts(id) ON DELETE CASCADE
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        `CREATE TABLE IF NOT EXISTS orders (
            id CHAR(36) PRIMARY KEY,
            partner_id CHAR(36) NOT NULL,
            quality_tier ENUM('standard', 'premium', 'komplett') NOT NULL,
            search_params JSON,
            status ENUM('ENTWURF', 'CONFIRMED', 'PROCESSING', 'COMPLETED', 'FAILED') NOT NULL DEFAULT 'ENTWURF',
            attempts INT NOT NULL DEFAULT 0,
            max_attempts INT NOT NULL DEFAULT 3,
            estimated_cost_cents BIGINT NOT NULL DEFAULT 0,
            actual_cost_cents BIGINT NULL,
            raw_count INT NOT NULL DEFAULT 0,
            new_count INT NOT NULL DEFAULT 0,
            duplicate_count INT NOT NULL DEFAULT 0,
            updated_count INT NOT NULL DEFAULT 0,
            error_message VARCHAR(1000),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
            completed_at TIMESTAMP NULL,
            INDEX idx_status_created (status, created_at),
            INDEX idx_partner (partner_id),
            FOREIGN KEY (partner_id) REFERENCES partners(id) ON DELETE CASCADE
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        `CREATE TABLE IF NOT EXISTS companies (
            id CHAR(36) PRIMARY KEY,
            name VARCHAR(300) NOT NULL,
            address VARCHAR(300),
            plz VARCHAR(20),
            city VARCHAR(150),
            phone VARCHAR(50),
            website VARCHAR(300),
            email VARCHAR(200),
            lat DECIMAL(10,7) NOT NULL DEFAULT 0,
            lng DECIMAL(10,7) NOT NULL DEFAULT 0,
            metadata JSON,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
            INDEX idx_website (website(100)),
            INDEX idx_phone (phone),
            INDEX idx_location (lat, lng)
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        `CREATE TABLE IF NOT EXISTS raw_results (
            id CHAR(36) PRIMARY KEY,
            order_id CHAR(36) NOT NULL,
            source VARCHAR(50) NOT NULL,
            external_id VARCHAR(150),
            name VARCHAR(300) NOT NULL,
            address VARCHAR(300),
            plz VARCHAR(20),
            city VARCHAR(150),
            phone VARCHAR(50),
            email VARCHAR(200),
            website VARCHAR(300),
            category VARCHAR(150),
            lat DECIMAL(10,7) NOT NULL DEFAULT 0,
            lng DECIMAL(10,7) NOT NULL DEFAULT 0,
            raw_payload JSON,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            INDEX idx_order (order_id),
            INDEX idx_source_external (source, external_id),
            FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        `CREATE TABLE IF NOT EXISTS usage_records (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            partner_id CHAR(36) NOT NULL,
            endpoint VARCHAR(150) NOT NULL,
            method VARCHAR(10) NOT NULL,
            parameters JSON,
            status_code INT NOT NULL,
            result_count INT NOT NULL DEFAULT 0,
            cost_cents BIGINT NOT NULL DEFAULT 0,
            response_time_ms INT NOT NULL DEFAULT 0,
            timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            INDEX idx_partner_time (partner_id, timestamp)
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        "CREATE TABLE IF NOT EXISTS settings (" +
            "`key` VARCHAR(150) PRIMARY KEY, " +
            "value TEXT, " +
            "updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" +
            ") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",

        `CREATE TABLE IF NOT EXISTS geo_kreis (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            name VARCHAR(200) NOT NULL,
            einwohner BIGINT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        `CREATE TABLE IF NOT EXISTS geo_ort (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            kreis_id BIGINT NULL,
            name VARCHAR(200) NOT NULL,
            plz VARCHAR(20),
            lat DECIMAL(10,7) NOT NULL,
            lng DECIMAL(10,7) NOT NULL,
            ist_hauptort BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            INDEX idx_kreis (kreis_id),
            INDEX idx_plz (plz),
            FOREIGN KEY (kreis_id) REFERENCES geo_kreis(id) ON DELETE SET NULL
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

        `CREATE TABLE IF NOT EXISTS google_kategorien (
            gcid VARCHAR(100) PRIMARY KEY,
            name_de VARCHAR(200),
            name VARCHAR(200)
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
    }

    for _, query := range queries {
        if _, err := db.ExecContext(ctx, query); err != nil {
            return fmt.Errorf("failed to execute query: %w", err)
        }
    }

    return nil
}

func insertInitialData(ctx context.Context, db *sql.DB) error {
    queries := []string{
        "INSERT INTO settings (`key`, value) VALUES ('bulk_action_max_results', '1000') " +
            "ON DUPLICATE KEY UPDATE `key`=`key`",
    }

    for _, query := range queries {
        if _, err := db.ExecContext(ctx, query); err != nil {
            return fmt.Errorf("failed to insert initial data: %w", err)
        }
    }

    return nil
}
