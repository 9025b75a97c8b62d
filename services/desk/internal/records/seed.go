package records

import (
	"time"

	"github.com/google/uuid"

	"signdesk/pkg/domain"
)

// defaultTemplates is the sample set written on the first read of an empty
// store. Creation times are staggered so newest-first ordering is stable.
// None of the samples carries a source document; synthesis does not need
// one and the samples should not eat into the quota.
func defaultTemplates(now time.Time) []domain.Template {
	return []domain.Template{
		{
			ID:        uuid.NewString(),
			Name:      "Membership Agreement",
			Category:  domain.CategoryMembership,
			CreatedAt: now,
			SizeLabel: "24 kB",
			PageCount: 2,
		},
		{
			ID:        uuid.NewString(),
			Name:      "Liability Waiver",
			Category:  domain.CategoryWaiver,
			CreatedAt: now.Add(-1 * time.Minute),
			SizeLabel: "18 kB",
			PageCount: 1,
		},
		{
			ID:        uuid.NewString(),
			Name:      "Personal Training Agreement",
			Category:  domain.CategoryPTAgreement,
			CreatedAt: now.Add(-2 * time.Minute),
			SizeLabel: "31 kB",
			PageCount: 3,
		},
	}
}
