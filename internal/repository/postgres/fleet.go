package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/repository"
)

type ambulanceRepository struct {
	BaseRepository
}

func NewAmbulanceRepository(base BaseRepository) repository.AmbulanceRepository {
	return &ambulanceRepository{base}
}

const ambulanceColumns = `id, plate_number, status, hospital_id, created_at, updated_at`

func (r *ambulanceRepository) Create(ctx context.Context, a *model.Ambulance) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = model.AmbulanceAvailable
	}
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt

	query := `INSERT INTO ambulances (` + ambulanceColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, a.ID, a.PlateNumber, a.Status, a.HospitalID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return storageErr("insert ambulance", err)
	}
	return nil
}

func (r *ambulanceRepository) Get(ctx context.Context, hospitalID, id uuid.UUID) (*model.Ambulance, error) {
	query := `SELECT ` + ambulanceColumns + ` FROM ambulances WHERE id = $1 AND hospital_id = $2`

	var a model.Ambulance
	if err := r.db.GetContext(ctx, &a, query, id, hospitalID); err != nil {
		return nil, notFoundOr("get ambulance", err)
	}
	return &a, nil
}

func (r *ambulanceRepository) Update(ctx context.Context, a *model.Ambulance) error {
	query := `
		UPDATE ambulances
		SET plate_number = $1, status = $2, updated_at = $3
		WHERE id = $4 AND hospital_id = $5
		RETURNING ` + ambulanceColumns

	if err := r.db.GetContext(ctx, a, query, a.PlateNumber, a.Status, time.Now().UTC(), a.ID, a.HospitalID); err != nil {
		return notFoundOr("update ambulance", err)
	}
	return nil
}

func (r *ambulanceRepository) Delete(ctx context.Context, hospitalID, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE drivers SET ambulance_id = NULL, updated_at = NOW() WHERE ambulance_id = $1 AND hospital_id = $2`,
			id, hospitalID)
		if err != nil {
			return storageErr("clear driver assignment", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM ambulances WHERE id = $1 AND hospital_id = $2`, id, hospitalID)
		if err != nil {
			return storageErr("delete ambulance", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (r *ambulanceRepository) List(ctx context.Context, hospitalID uuid.UUID) ([]*model.Ambulance, error) {
	query := `SELECT ` + ambulanceColumns + ` FROM ambulances WHERE hospital_id = $1 ORDER BY created_at`

	ambulances := make([]*model.Ambulance, 0)
	if err := r.db.SelectContext(ctx, &ambulances, query, hospitalID); err != nil {
		return nil, storageErr("list ambulances", err)
	}
	return ambulances, nil
}

func (r *ambulanceRepository) CountAvailable(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM ambulances WHERE hospital_id = $1 AND status = $2`

	var n int
	if err := r.db.GetContext(ctx, &n, query, hospitalID, model.AmbulanceAvailable); err != nil {
		return 0, storageErr("count available ambulances", err)
	}
	return n, nil
}

type driverRepository struct {
	BaseRepository
}

func NewDriverRepository(base BaseRepository) repository.DriverRepository {
	return &driverRepository{base}
}

const driverColumns = `id, first_name, last_name, license_number, hospital_id, ambulance_id, created_at, updated_at`

// checkAmbulance verifies the referenced ambulance belongs to the driver's
// hospital. Exclusivity is left to the drivers_ambulance_key index.
func checkAmbulance(ctx context.Context, tx *sqlx.Tx, d *model.Driver) error {
	if d.AmbulanceID == nil {
		return nil
	}
	var exists bool
	err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM ambulances WHERE id = $1 AND hospital_id = $2)`,
		*d.AmbulanceID, d.HospitalID)
	if err != nil {
		return storageErr("check ambulance", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return nil
}

func driverWriteErr(op string, err error) error {
	if _, dup := uniqueConstraint(err); dup {
		return repository.ErrAmbulanceAssigned
	}
	return storageErr(op, err)
}

func (r *driverRepository) Create(ctx context.Context, d *model.Driver) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()
	d.UpdatedAt = d.CreatedAt

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := checkAmbulance(ctx, tx, d); err != nil {
			return err
		}
		query := `INSERT INTO drivers (` + driverColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		_, err := tx.ExecContext(ctx, query,
			d.ID, d.FirstName, d.LastName, d.LicenseNumber, d.HospitalID, d.AmbulanceID, d.CreatedAt, d.UpdatedAt)
		if err != nil {
			return driverWriteErr("insert driver", err)
		}
		return nil
	})
}

func (r *driverRepository) Get(ctx context.Context, hospitalID, id uuid.UUID) (*model.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1 AND hospital_id = $2`

	var d model.Driver
	if err := r.db.GetContext(ctx, &d, query, id, hospitalID); err != nil {
		return nil, notFoundOr("get driver", err)
	}
	return &d, nil
}

func (r *driverRepository) Update(ctx context.Context, d *model.Driver) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := checkAmbulance(ctx, tx, d); err != nil {
			return err
		}
		query := `
			UPDATE drivers
			SET first_name = $1, last_name = $2, license_number = $3, ambulance_id = $4, updated_at = $5
			WHERE id = $6 AND hospital_id = $7
			RETURNING ` + driverColumns

		err := tx.GetContext(ctx, d, query,
			d.FirstName, d.LastName, d.LicenseNumber, d.AmbulanceID, time.Now().UTC(), d.ID, d.HospitalID)
		if err != nil {
			if _, dup := uniqueConstraint(err); dup {
				return repository.ErrAmbulanceAssigned
			}
			return notFoundOr("update driver", err)
		}
		return nil
	})
}

func (r *driverRepository) Delete(ctx context.Context, hospitalID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM drivers WHERE id = $1 AND hospital_id = $2`, id, hospitalID)
	if err != nil {
		return storageErr("delete driver", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *driverRepository) List(ctx context.Context, hospitalID uuid.UUID) ([]*model.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE hospital_id = $1 ORDER BY created_at`

	drivers := make([]*model.Driver, 0)
	if err := r.db.SelectContext(ctx, &drivers, query, hospitalID); err != nil {
		return nil, storageErr("list drivers", err)
	}
	return drivers, nil
}
