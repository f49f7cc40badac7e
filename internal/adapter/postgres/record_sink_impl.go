package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/medcrawl/internal/entity"
	"github.com/user/medcrawl/internal/repository"
)

// RecordSinkImpl upserts extracted records into PostgreSQL. Physicians and
// shift postings land in separate tables; both upserts are idempotent on
// the record's natural key.
type RecordSinkImpl struct {
	db *pgxpool.Pool
}

// NewRecordSink creates a new instance of RecordSinkImpl.
func NewRecordSink(db *pgxpool.Pool) *RecordSinkImpl {
	return &RecordSinkImpl{db: db}
}

// Upsert stores a batch of records in a single transaction.
func (r *RecordSinkImpl) Upsert(ctx context.Context, records []entity.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin upsert batch: %v", repository.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range records {
		switch v := rec.(type) {
		case *entity.Physician:
			if err := queuePhysician(batch, v); err != nil {
				return err
			}
		case *entity.ShiftPosting:
			queueShift(batch, v)
		default:
			return fmt.Errorf("unsupported record type %T", rec)
		}
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: upsert batch of %d records: %v", repository.ErrStorageUnavailable, len(records), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit upsert batch: %v", repository.ErrStorageUnavailable, err)
	}
	return nil
}

func queuePhysician(batch *pgx.Batch, p *entity.Physician) error {
	specialties, err := json.Marshal(p.Specialties)
	if err != nil {
		return fmt.Errorf("marshal specialties for %s: %w", p.NaturalKey(), err)
	}

	batch.Queue(`
		INSERT INTO physicians (
			crm, raw_crm, state, name, social_name, status, registration_type,
			registration_date, graduation_institution, graduation_date, is_foreign,
			security_hash, interdiction_note, specialties, raw_data, crawled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (crm, state) DO UPDATE SET
			raw_crm = EXCLUDED.raw_crm,
			name = EXCLUDED.name,
			social_name = EXCLUDED.social_name,
			status = EXCLUDED.status,
			registration_type = EXCLUDED.registration_type,
			registration_date = EXCLUDED.registration_date,
			graduation_institution = EXCLUDED.graduation_institution,
			graduation_date = EXCLUDED.graduation_date,
			is_foreign = EXCLUDED.is_foreign,
			security_hash = EXCLUDED.security_hash,
			interdiction_note = EXCLUDED.interdiction_note,
			specialties = EXCLUDED.specialties,
			raw_data = EXCLUDED.raw_data,
			crawled_at = EXCLUDED.crawled_at,
			updated_at = NOW();
	`,
		p.CRM, p.RawCRM, p.State, p.Name, p.SocialName, p.Status, p.RegistrationType,
		p.RegistrationDate, p.GraduationInstitution, p.GraduationDate, p.IsForeign,
		p.SecurityHash, p.InterdictionNote, specialties, p.RawData, p.CrawledAt,
	)
	return nil
}

func queueShift(batch *pgx.Batch, s *entity.ShiftPosting) {
	batch.Queue(`
		INSERT INTO shift_postings (
			service_id, shift_id, professional_id, location, section,
			shift_type_id, shift_type, starts_at, ends_at, value,
			needs_coverage, crawled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (service_id) DO UPDATE SET
			shift_id = EXCLUDED.shift_id,
			professional_id = EXCLUDED.professional_id,
			location = EXCLUDED.location,
			section = EXCLUDED.section,
			shift_type_id = EXCLUDED.shift_type_id,
			shift_type = EXCLUDED.shift_type,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			value = EXCLUDED.value,
			needs_coverage = EXCLUDED.needs_coverage,
			crawled_at = EXCLUDED.crawled_at,
			updated_at = NOW();
	`,
		s.ServiceID, s.ShiftID, s.ProfessionalID, s.Location, s.Section,
		s.ShiftTypeID, s.ShiftType, s.StartsAt, s.EndsAt, s.Value,
		s.NeedsCoverage, s.CrawledAt,
	)
}
