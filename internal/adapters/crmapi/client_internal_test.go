package crmapi

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PabloGalante/deal-assistant/internal/domain"
)

func TestRememberedIDKindsAreBounded(t *testing.T) {
	c := NewClient("http://crm.invalid")
	for i := range maxKnownIDs + 10 {
		c.rememberKind(domain.CompanyRef(fmt.Sprintf("c-%d", i)), kindString)
	}

	assert.Len(t, c.kinds, maxKnownIDs)
	assert.Len(t, c.kindOrder, maxKnownIDs)
	assert.NotContains(t, c.kinds, domain.CompanyRef("c-0"))
	assert.Contains(t, c.kinds, domain.CompanyRef(fmt.Sprintf("c-%d", maxKnownIDs+9)))

	// Evicted ids fall back to the numeric heuristic.
	assert.JSONEq(t, `"c-0"`, string(c.encodeID("c-0")))
	assert.JSONEq(t, `15`, string(c.encodeID("15")))
}

func TestRememberKindRefreshDoesNotGrowOrder(t *testing.T) {
	c := &Client{}
	c.rememberKind("1001", kindString)
	c.rememberKind("1001", kindString)

	assert.Len(t, c.kindOrder, 1)
	assert.JSONEq(t, `"1001"`, string(c.encodeID("1001")))
}
