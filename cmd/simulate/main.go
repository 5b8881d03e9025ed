// simulate drives concurrent booking traffic against a running api-server so
// the single-winner-per-slot contract can be observed under real contention.
// After the run it asserts against Postgres that no slot carries more than
// one non-cancelled appointment.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelinehq/clinic-queue/internal/db"
)

type simConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Doctors     int
	PostgresDSN string
}

type metrics struct {
	total    int64
	success  int64
	conflict int64
	errored  int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *metrics) record(latency time.Duration, status int) {
	atomic.AddInt64(&m.total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.conflict, 1)
	default:
		atomic.AddInt64(&m.errored, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *metrics) percentile(p int) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func main() {
	log.SetFlags(log.LstdFlags)

	cfg := simConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 20),
		Doctors:     getInt("SIM_DOCTORS", 5),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	doctors, patients, err := loadPool(context.Background(), pool, cfg.Doctors)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("simulating with %d doctors, %d patients, %d workers for %s",
		len(doctors), len(patients), cfg.Workers, cfg.Duration)

	date := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	urgencies := []string{"low", "medium", "high", "emergency"}

	var m metrics
	deadline := time.Now().Add(cfg.Duration)
	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))

			for time.Now().Before(deadline) {
				doctorID := doctors[rng.Intn(len(doctors))]

				slots, err := fetchSlots(client, cfg.APIBaseURL, doctorID, date)
				if err != nil || len(slots) == 0 {
					continue
				}

				body, _ := json.Marshal(map[string]string{
					"patient_id":   patients[rng.Intn(len(patients))].String(),
					"doctor_id":    doctorID.String(),
					"date":         date,
					"time_slot_id": slots[rng.Intn(len(slots))].String(),
					"urgency":      urgencies[rng.Intn(len(urgencies))],
				})

				start := time.Now()
				resp, err := client.Post(cfg.APIBaseURL+"/appointments", "application/json", bytes.NewReader(body))
				if err != nil {
					m.record(time.Since(start), 0)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				m.record(time.Since(start), resp.StatusCode)
			}
		}(int64(w) + time.Now().UnixNano())
	}
	wg.Wait()

	log.Printf("bookings: total=%d success=%d conflict=%d error=%d p50=%s p95=%s",
		m.total, m.success, m.conflict, m.errored, m.percentile(50), m.percentile(95))

	verifyNoDoubleBooking(context.Background(), pool)
}

func fetchSlots(client *http.Client, base string, doctorID uuid.UUID, date string) ([]uuid.UUID, error) {
	resp, err := client.Get(fmt.Sprintf("%s/slots?doctor_id=%s&date=%s", base, doctorID, date))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var slots []struct {
		ID        uuid.UUID `json:"id"`
		Available bool      `json:"available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		return nil, err
	}

	var free []uuid.UUID
	for _, s := range slots {
		if s.Available {
			free = append(free, s.ID)
		}
	}
	return free, nil
}

func loadPool(ctx context.Context, pool *pgxpool.Pool, doctorLimit int) (doctors, patients []uuid.UUID, err error) {
	rows, err := pool.Query(ctx, `SELECT id FROM doctors LIMIT $1`, doctorLimit)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, nil, err
		}
		doctors = append(doctors, id)
	}

	prows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT 1000`)
	if err != nil {
		return nil, nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var id uuid.UUID
		if err := prows.Scan(&id); err != nil {
			return nil, nil, err
		}
		patients = append(patients, id)
	}

	return doctors, patients, rows.Err()
}

func verifyNoDoubleBooking(ctx context.Context, pool *pgxpool.Pool) {
	var violations int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM (
			SELECT time_slot_id
			FROM appointments
			WHERE status != 'cancelled'
			GROUP BY time_slot_id
			HAVING count(*) > 1
		) doubled
	`).Scan(&violations)
	if err != nil {
		log.Printf("double-booking check failed: %v", err)
		return
	}
	if violations > 0 {
		log.Printf("INVARIANT VIOLATED: %d slots with more than one active appointment", violations)
		return
	}
	log.Println("double-booking check passed: every slot has at most one active appointment")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
