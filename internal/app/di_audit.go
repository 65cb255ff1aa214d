package app

import (
	"fmt"

	auditRepository "github.com/allisson/fieldcrypt/internal/audit/repository"
	auditService "github.com/allisson/fieldcrypt/internal/audit/service"
	auditUseCase "github.com/allisson/fieldcrypt/internal/audit/usecase"
)

type auditComponents struct {
	auditRecordRepository lazy[auditUseCase.AuditRecordRepository]
	auditSigner           lazy[auditService.AuditSigner]
	auditRecordUseCase    lazy[auditUseCase.AuditRecordUseCase]
}

// AuditRecordRepository returns the audit store; a no-op one on the memory driver.
func (c *Container) AuditRecordRepository() (auditUseCase.AuditRecordRepository, error) {
	return c.auditRecordRepository.get(c.initAuditRecordRepository)
}

// AuditSigner returns the record signer keyed from ENCRYPTION_SEARCH_SALT, or nil when
// no salt is configured.
func (c *Container) AuditSigner() (auditService.AuditSigner, error) {
	return c.auditSigner.get(c.initAuditSigner)
}

// AuditRecordUseCase returns the audit trail.
func (c *Container) AuditRecordUseCase() (auditUseCase.AuditRecordUseCase, error) {
	return c.auditRecordUseCase.get(c.initAuditRecordUseCase)
}

func (c *Container) initAuditRecordRepository() (auditUseCase.AuditRecordRepository, error) {
	if c.config.DBDriver == DriverMemory {
		return auditRepository.NewNoopAuditRecordRepository(), nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for audit record repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return auditRepository.NewPostgreSQLAuditRecordRepository(db), nil
	case "mysql":
		return auditRepository.NewMySQLAuditRecordRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initAuditSigner() (auditService.AuditSigner, error) {
	if c.config.SearchSalt == "" {
		c.Logger().Warn("ENCRYPTION_SEARCH_SALT is empty, audit records will be stored unsigned")
		return nil, nil
	}
	signer, err := auditService.NewAuditSigner([]byte(c.config.SearchSalt))
	if err != nil {
		return nil, fmt.Errorf("failed to create audit signer: %w", err)
	}
	return signer, nil
}

func (c *Container) initAuditRecordUseCase() (auditUseCase.AuditRecordUseCase, error) {
	repo, err := c.AuditRecordRepository()
	if err != nil {
		return nil, err
	}
	signer, err := c.AuditSigner()
	if err != nil {
		return nil, err
	}
	return auditUseCase.NewAuditRecordUseCase(repo, signer, nil), nil
}
