package tracking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/testutil"
)

func TestFormatAndParse(t *testing.T) {
	tn := Format("IN", 2026, 42)
	require.Equal(t, "IN-2026-000042", tn)
	require.True(t, Valid(tn))

	prefix, year, seq, err := Parse(tn)
	require.NoError(t, err)
	require.Equal(t, "IN", prefix)
	require.Equal(t, 2026, year)
	require.Equal(t, 42, seq)

	require.False(t, Valid("IN-2026-42"))
	require.False(t, Valid(CopyTrackingNumber(tn, 1)))
	require.Equal(t, "IN-2026-000042-COPY-3", CopyTrackingNumber(tn, 3))

	_, _, _, err = Parse(CopyTrackingNumber(tn, 1))
	require.Error(t, err)
}

func TestDefaultPrefix(t *testing.T) {
	require.Equal(t, "IN", DefaultPrefix(models.DocumentTypeIncoming))
	require.Equal(t, "OUT", DefaultPrefix(models.DocumentTypeOutgoing))
	require.Equal(t, "INT", DefaultPrefix(models.DocumentTypeInternal))
	require.Equal(t, "DOC", DefaultPrefix(models.DocumentType("memo")))

	a := NewAllocator(map[string]string{"incoming": "rcv"})
	require.Equal(t, "RCV", a.Prefix(models.DocumentTypeIncoming))
	require.Equal(t, "OUT", a.Prefix(models.DocumentTypeOutgoing))
}

func fixedAllocator(year int) *Allocator {
	a := NewAllocator(nil)
	a.now = func() time.Time { return time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC) }
	return a
}

func generateAndInsert(t *testing.T, db *gorm.DB, a *Allocator, docType models.DocumentType) string {
	t.Helper()

	office := testutil.CreateOffice(t, db, "registry")
	user := testutil.CreateUser(t, db, office, models.RoleUser)

	var tn string
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		tn, err = a.Generate(tx, docType, "")
		if err != nil {
			return err
		}
		doc := &models.Document{
			TrackingNumber:  tn,
			Title:           "t",
			DocumentType:    docType,
			Status:          models.StatusRegistered,
			CurrentOfficeID: office.ID,
			CreatedBy:       user.ID,
			RegisteredBy:    user.ID,
		}
		return tx.Create(doc).Error
	})
	require.NoError(t, err)
	return tn
}

func TestGenerateIsSequentialPerPrefixAndYear(t *testing.T) {
	db := testutil.NewDB(t)
	a := fixedAllocator(2026)

	require.Equal(t, "IN-2026-000001", generateAndInsert(t, db, a, models.DocumentTypeIncoming))
	require.Equal(t, "IN-2026-000002", generateAndInsert(t, db, a, models.DocumentTypeIncoming))
	require.Equal(t, "OUT-2026-000001", generateAndInsert(t, db, a, models.DocumentTypeOutgoing))

	next := fixedAllocator(2027)
	require.Equal(t, "IN-2027-000001", generateAndInsert(t, db, next, models.DocumentTypeIncoming))
}

func TestGenerateIgnoresCopiesAndCountsDeleted(t *testing.T) {
	db := testutil.NewDB(t)
	a := fixedAllocator(2026)

	first := generateAndInsert(t, db, a, models.DocumentTypeIncoming)

	office := testutil.CreateOffice(t, db, "records")
	user := testutil.CreateUser(t, db, office, models.RoleUser)
	main := testutil.CreateDocument(t, db, "IN-2026-000007", office, user)

	parentID := main.ID
	n := 1
	copyDoc := testutil.CreateDocument(t, db, CopyTrackingNumber("IN-2026-000009", 1), office, user)
	require.NoError(t, db.Model(copyDoc).Updates(map[string]interface{}{
		"is_copy":            true,
		"parent_document_id": parentID,
		"copy_number":        n,
	}).Error)

	require.NoError(t, db.Delete(main).Error)

	require.Equal(t, "IN-2026-000001", first)
	require.Equal(t, "IN-2026-000008", generateAndInsert(t, db, a, models.DocumentTypeIncoming))
}

func TestGenerateConcurrentlyYieldsUniqueNumbers(t *testing.T) {
	db := testutil.NewDB(t)
	a := fixedAllocator(2026)
	office := testutil.CreateOffice(t, db, "registry")
	user := testutil.CreateUser(t, db, office, models.RoleUser)

	const workers = 12
	results := make([]string, workers)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			return db.Transaction(func(tx *gorm.DB) error {
				tn, err := a.Generate(tx, models.DocumentTypeInternal, "")
				if err != nil {
					return err
				}
				results[i] = tn
				return tx.Create(&models.Document{
					TrackingNumber:  tn,
					Title:           fmt.Sprintf("doc %d", i),
					DocumentType:    models.DocumentTypeInternal,
					Status:          models.StatusRegistered,
					CurrentOfficeID: office.ID,
					CreatedBy:       user.ID,
					RegisteredBy:    user.ID,
				}).Error
			})
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]bool, workers)
	for _, tn := range results {
		require.True(t, Valid(tn), tn)
		require.False(t, seen[tn], "duplicate %s", tn)
		seen[tn] = true
	}
	require.True(t, seen[Format("INT", 2026, workers)])
}
