package config_test

import (
	"context"
	"testing"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/config"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/store/memory"
)

const seedYAML = `
tenants:
  - id: t1
    name: Acme
    work_start: "09:00"
    late_tolerance_minutes: 10
    working_days: [mon, tue, wed, thu, fri, sat]
    office:
      latitude: -6.2
      longitude: 106.8167
      radius_meters: 150
      enforce: true
    timezone: Asia/Jakarta
shifts:
  - id: night
    tenant_id: t1
    name: Night
    start: "22:00"
    end: "06:00"
    break_start: "02:00"
employees:
  - id: e1
    tenant_id: t1
    shift_id: night
    name: Ana
    joined_on: 2023-05-01
leave_types:
  - id: lt-annual
    tenant_id: t1
    name: Annual Leave
    code: annual
    annual_quota: 12
    carry_over:
      enabled: true
      max_days: "4.5"
  - id: lt-sick
    tenant_id: t1
    code: SICK
    annual_quota: 6
    requires_approval: false
policies:
  - id: p-2025
    tenant_id: t1
    year: 2025
    probation_months: 3
    max_carry_over_days: 3
holidays:
  - id: h-newyear
    name: New Year
    date: 2025-01-01
    recurring: true
`

func TestSeed_Apply(t *testing.T) {
	ctx := context.Background()
	seed, err := config.ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	// WHEN: applied twice
	store := memory.New()
	n, err := seed.Apply(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	_, err = seed.Apply(ctx, store)
	require.NoError(t, err, "re-applying is an upsert")

	// THEN
	tenant, err := store.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.MustTimeOfDay("09:00"), tenant.WorkStart)
	assert.Equal(t, domain.MustTimeOfDay("17:00"), tenant.WorkEnd, "unset fields keep defaults")
	assert.Equal(t, 10, tenant.LateToleranceMinutes)
	assert.Len(t, tenant.WorkingDays, 6)
	assert.Equal(t, 150, tenant.GeofenceRadiusMeters)
	assert.True(t, tenant.EnforceGeofence)
	assert.True(t, tenant.Active)

	shift, err := store.GetShift(ctx, "night")
	require.NoError(t, err)
	require.NotNil(t, shift.BreakStart)
	assert.Nil(t, shift.BreakEnd)
	assert.Equal(t, domain.DefaultWorkingDays(), shift.WorkingDays)

	annual, err := store.FindLeaveTypeByCode(ctx, "t1", "ANNUAL")
	require.NoError(t, err)
	require.NotNil(t, annual)
	assert.Equal(t, "12.00", annual.AnnualQuota.String())
	assert.Equal(t, "4.50", annual.CarryOver.MaxDays.String())
	assert.True(t, annual.CarryOver.AutoExpire)
	assert.True(t, annual.RequiresApproval)

	sick, err := store.GetLeaveType(ctx, "lt-sick")
	require.NoError(t, err)
	assert.Equal(t, "SICK", sick.Name)
	assert.False(t, sick.RequiresApproval)

	policy, err := store.FindPolicy(ctx, "t1", 2025)
	require.NoError(t, err)
	require.NotNil(t, policy)
	assert.Equal(t, domain.YearWindow(2025), policy.Window)
	assert.Equal(t, "3.00", policy.MaxCarryOverDays.String())
	assert.True(t, policy.ProRateNewEmployees)

	holiday, err := store.IsHoliday(ctx, domain.MustParseDate("2027-01-01"), "t1")
	require.NoError(t, err)
	assert.True(t, holiday)
}

func TestParseSeed_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "tenants:\n  - id: t1\n    colour: red\n"},
		{"bad quota", "leave_types:\n  - id: x\n    code: X\n    annual_quota: lots\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.ParseSeed([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestSeed_ApplyRejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"tenant without id", "tenants:\n  - name: Acme\n"},
		{"bad timezone", "tenants:\n  - id: t1\n    timezone: Mars/Olympus\n"},
		{"bad weekday", "tenants:\n  - id: t1\n    working_days: [funday]\n"},
		{"bad shift time", "shifts:\n  - id: s\n    tenant_id: t1\n    start: \"25:00\"\n    end: \"06:00\"\n"},
		{"inverted policy", "policies:\n  - id: p\n    year: 2025\n    start: 2025-12-01\n    end: 2025-01-01\n"},
		{"bad holiday date", "holidays:\n  - id: h\n    date: 01/01/2025\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed, err := config.ParseSeed([]byte(tt.doc))
			require.NoError(t, err)
			_, err = seed.Apply(context.Background(), memory.New())
			assert.Error(t, err)
		})
	}
}

func TestParseSeed_Empty(t *testing.T) {
	seed, err := config.ParseSeed(nil)
	require.NoError(t, err)
	n, err := seed.Apply(context.Background(), memory.New())
	require.NoError(t, err)
	assert.Zero(t, n)
}
