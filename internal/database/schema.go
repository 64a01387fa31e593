package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema holds the DDL for every table the booking core owns.  The
// statements are idempotent so EnsureSchema can run on every startup.
//
// Two uniqueness tricks carry the correctness of the whole system:
//
//   - seat_holds.active_seat_id is a generated column equal to seat_id
//     while status='HELD' and NULL otherwise.  The unique index on it
//     means at most one HELD row can exist per seat; a racing insert
//     fails at the database and the loser treats the seat as
//     unavailable.
//   - booking_seats.active_seat_id works the same way for
//     non-released booking seats, so a seat can never be sold twice.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS flights (
		id           BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		flight_no    VARCHAR(16)  NOT NULL,
		departure_at DATETIME     NOT NULL,
		is_active    TINYINT(1)   NOT NULL DEFAULT 1,
		created_at   DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at   DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_flights_no_departure (flight_no, departure_at)
	)`,
	`CREATE TABLE IF NOT EXISTS fare_classes (
		id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		flight_id       BIGINT UNSIGNED NOT NULL,
		code            VARCHAR(16)     NOT NULL,
		price_cents     INT UNSIGNED    NOT NULL,
		extra_fee_cents INT UNSIGNED    NOT NULL DEFAULT 0,
		UNIQUE KEY uq_fare_classes_flight_code (flight_id, code),
		CONSTRAINT fk_fare_classes_flight FOREIGN KEY (flight_id) REFERENCES flights (id)
	)`,
	`CREATE TABLE IF NOT EXISTS seats (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		flight_id     BIGINT UNSIGNED NOT NULL,
		fare_class_id BIGINT UNSIGNED NOT NULL,
		seat_number   VARCHAR(8)      NOT NULL,
		status        ENUM('AVAILABLE','RESERVED','OCCUPIED') NOT NULL DEFAULT 'AVAILABLE',
		is_active     TINYINT(1)      NOT NULL DEFAULT 1,
		created_at    DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_seats_flight_number (flight_id, seat_number),
		CONSTRAINT fk_seats_flight FOREIGN KEY (flight_id) REFERENCES flights (id),
		CONSTRAINT fk_seats_fare_class FOREIGN KEY (fare_class_id) REFERENCES fare_classes (id)
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id                 BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		reference          VARCHAR(16)     NOT NULL,
		flight_id          BIGINT UNSIGNED NOT NULL,
		contact_email      VARCHAR(255)    NOT NULL,
		contact_phone      VARCHAR(32)     NOT NULL DEFAULT '',
		status             ENUM('DRAFT','PAYMENT_PENDING','CONFIRMED','CHECKED_IN','COMPLETED','CANCELLED','EXPIRED','REFUNDED') NOT NULL,
		total_amount_cents INT UNSIGNED    NOT NULL,
		currency           CHAR(3)         NOT NULL DEFAULT 'USD',
		expires_at         DATETIME        NULL,
		confirmed_at       DATETIME        NULL,
		cancelled_at       DATETIME        NULL,
		checked_in_at      DATETIME        NULL,
		created_at         DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at         DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_bookings_reference (reference),
		KEY idx_bookings_status_expires (status, expires_at),
		CONSTRAINT fk_bookings_flight FOREIGN KEY (flight_id) REFERENCES flights (id)
	)`,
	`CREATE TABLE IF NOT EXISTS booking_passengers (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		booking_id    BIGINT UNSIGNED NOT NULL,
		first_name    VARCHAR(64)     NOT NULL,
		last_name     VARCHAR(64)     NOT NULL,
		document_no   VARCHAR(32)     NOT NULL,
		date_of_birth DATE            NOT NULL,
		CONSTRAINT fk_passengers_booking FOREIGN KEY (booking_id) REFERENCES bookings (id)
	)`,
	`CREATE TABLE IF NOT EXISTS seat_holds (
		id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		seat_id         BIGINT UNSIGNED NOT NULL,
		flight_id       BIGINT UNSIGNED NOT NULL,
		booking_id      BIGINT UNSIGNED NULL,
		holder_id       VARCHAR(64)     NOT NULL,
		status          ENUM('HELD','CONFIRMED','RELEASED','EXPIRED') NOT NULL DEFAULT 'HELD',
		price_cents     INT UNSIGNED    NOT NULL,
		extra_fee_cents INT UNSIGNED    NOT NULL DEFAULT 0,
		held_at         DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at      DATETIME        NOT NULL,
		released_at     DATETIME        NULL,
		release_reason  VARCHAR(128)    NULL,
		active_seat_id  BIGINT UNSIGNED AS (IF(status = 'HELD', seat_id, NULL)) STORED,
		UNIQUE KEY uq_seat_holds_active (active_seat_id),
		KEY idx_seat_holds_status_expires (status, expires_at),
		KEY idx_seat_holds_booking (booking_id),
		CONSTRAINT fk_seat_holds_seat FOREIGN KEY (seat_id) REFERENCES seats (id)
	)`,
	`CREATE TABLE IF NOT EXISTS booking_seats (
		id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		booking_id     BIGINT UNSIGNED NOT NULL,
		seat_id        BIGINT UNSIGNED NOT NULL,
		passenger_id   BIGINT UNSIGNED NOT NULL,
		seat_hold_id   BIGINT UNSIGNED NOT NULL,
		price_cents    INT UNSIGNED    NOT NULL,
		released_at    DATETIME        NULL,
		active_seat_id BIGINT UNSIGNED AS (IF(released_at IS NULL, seat_id, NULL)) STORED,
		UNIQUE KEY uq_booking_seats_active (active_seat_id),
		CONSTRAINT fk_booking_seats_booking FOREIGN KEY (booking_id) REFERENCES bookings (id),
		CONSTRAINT fk_booking_seats_seat FOREIGN KEY (seat_id) REFERENCES seats (id),
		CONSTRAINT fk_booking_seats_passenger FOREIGN KEY (passenger_id) REFERENCES booking_passengers (id),
		CONSTRAINT fk_booking_seats_hold FOREIGN KEY (seat_hold_id) REFERENCES seat_holds (id)
	)`,
	`CREATE TABLE IF NOT EXISTS booking_requests (
		id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		idempotency_key VARCHAR(128)    NOT NULL,
		payload_hash    CHAR(64)        NOT NULL,
		status          ENUM('PENDING','PROCESSING','COMPLETED','FAILED','RETRYING') NOT NULL DEFAULT 'PENDING',
		booking_id      BIGINT UNSIGNED NULL,
		booking_ref     VARCHAR(16)     NOT NULL DEFAULT '',
		error_message   VARCHAR(512)    NOT NULL DEFAULT '',
		expires_at      DATETIME        NOT NULL,
		created_at      DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_booking_requests_key (idempotency_key)
	)`,
	`CREATE TABLE IF NOT EXISTS dead_letter_entries (
		id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		job_id          VARCHAR(64)  NOT NULL,
		correlation_id  VARCHAR(64)  NOT NULL DEFAULT '',
		job_type        VARCHAR(128) NOT NULL,
		args            TEXT         NOT NULL,
		queue           VARCHAR(128) NOT NULL,
		retry_attempts  INT          NOT NULL DEFAULT 0,
		exception       TEXT         NOT NULL,
		first_failed_at DATETIME     NOT NULL,
		moved_at        DATETIME     NOT NULL,
		is_requeued     TINYINT(1)   NOT NULL DEFAULT 0,
		requeued_by     VARCHAR(64)  NULL,
		requeued_at     DATETIME     NULL,
		created_at      DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_dead_letter_requeued_created (is_requeued, created_at),
		KEY idx_dead_letter_job_type (job_type)
	)`,
	`CREATE TABLE IF NOT EXISTS mutex_locks (
		resource   VARCHAR(128) NOT NULL PRIMARY KEY,
		token      CHAR(36)     NOT NULL,
		expires_at DATETIME     NOT NULL
	)`,
}

// EnsureSchema creates every table the service needs if it does not
// exist yet.  It is safe to call on every startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
