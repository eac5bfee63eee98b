package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smada/genius-backend/internal/model"
)

// ViolationRepository stores the integrity violation history of exam
// sessions in PostgreSQL. Live counters are kept in Redis by MonitorService;
// this table is the durable log the violation worker writes to.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

var violationColumns = []string{"exam_id", "student_id", "student_name", "signal", "count", "recorded_at"}

// InsertBatch bulk-loads events with COPY.
func (r *ViolationRepository) InsertBatch(ctx context.Context, events []model.ViolationEvent) (int64, error) {
	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"exam_violations"},
		violationColumns,
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			return []any{e.ExamID, e.StudentID, e.StudentName, e.Signal, e.Count, e.Timestamp}, nil
		}),
	)
}

// Insert stores one event.
func (r *ViolationRepository) Insert(ctx context.Context, e model.ViolationEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_violations (exam_id, student_id, student_name, signal, count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ExamID, e.StudentID, e.StudentName, e.Signal, e.Count, e.Timestamp,
	)
	return err
}

// ListByExam returns the most recent events of an exam, newest first.
func (r *ViolationRepository) ListByExam(ctx context.Context, examID string, limit int) ([]model.ViolationEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, student_id, student_name, signal, count, recorded_at
		 FROM exam_violations
		 WHERE exam_id = $1
		 ORDER BY recorded_at DESC
		 LIMIT $2`,
		examID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.ViolationEvent{}
	for rows.Next() {
		var e model.ViolationEvent
		if err := rows.Scan(&e.ExamID, &e.StudentID, &e.StudentName, &e.Signal, &e.Count, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountsByExam returns the number of recorded events per student of an exam.
func (r *ViolationRepository) CountsByExam(ctx context.Context, examID string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM exam_violations
		 WHERE exam_id = $1
		 GROUP BY student_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var sid string
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}

// DeleteByExam removes the history of an exam.
func (r *ViolationRepository) DeleteByExam(ctx context.Context, examID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exam_violations WHERE exam_id = $1`, examID)
	return err
}
