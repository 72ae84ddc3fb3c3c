// Package memory provides an in-process domain.TxStore for tests and
// single-node development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/attendance-ledger/domain"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory guards a dataset with one mutex. WithTx holds the mutex for the
// whole callback, which makes Lock a no-op: every transaction is already
// serialised.
type Memory struct {
	mu sync.Mutex
	d  *dataset
}

func New() *Memory {
	return &Memory{d: newDataset()}
}

// WithTx executes fn within a transaction, simulated by snapshot and
// restore on error.
func (m *Memory) WithTx(ctx context.Context, fn func(domain.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.d.snapshot()
	if err := fn(m.d); err != nil {
		m.d = snap
		return err
	}
	return nil
}

func (m *Memory) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.GetTenant(ctx, id)
}

func (m *Memory) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.GetEmployee(ctx, id)
}

func (m *Memory) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.GetShift(ctx, id)
}

func (m *Memory) FindAttendance(ctx context.Context, employeeID string, day domain.Date) (*domain.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.FindAttendance(ctx, employeeID, day)
}

func (m *Memory) CreateAttendance(ctx context.Context, a domain.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.CreateAttendance(ctx, a)
}

func (m *Memory) UpdateAttendance(ctx context.Context, a domain.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.UpdateAttendance(ctx, a)
}

func (m *Memory) GetLeaveType(ctx context.Context, id string) (*domain.LeaveType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.GetLeaveType(ctx, id)
}

func (m *Memory) FindLeaveTypeByCode(ctx context.Context, tenantID, code string) (*domain.LeaveType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.FindLeaveTypeByCode(ctx, tenantID, code)
}

func (m *Memory) ListLeaveTypes(ctx context.Context, tenantID string, activeOnly bool) ([]domain.LeaveType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.ListLeaveTypes(ctx, tenantID, activeOnly)
}

func (m *Memory) CreateLeaveType(ctx context.Context, lt domain.LeaveType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.CreateLeaveType(ctx, lt)
}

func (m *Memory) FindPolicy(ctx context.Context, tenantID string, year int) (*domain.LeavePolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.FindPolicy(ctx, tenantID, year)
}

func (m *Memory) FindPolicyCovering(ctx context.Context, tenantID string, day domain.Date) (*domain.LeavePolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.FindPolicyCovering(ctx, tenantID, day)
}

func (m *Memory) GetBalance(ctx context.Context, id string) (*domain.LeaveBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.GetBalance(ctx, id)
}

func (m *Memory) FindBalance(ctx context.Context, key domain.BalanceKey) (*domain.LeaveBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.FindBalance(ctx, key)
}

func (m *Memory) ListBalances(ctx context.Context, employeeID string, year int) ([]domain.LeaveBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.ListBalances(ctx, employeeID, year)
}

func (m *Memory) ListBalancesWithCarryOver(ctx context.Context) ([]domain.LeaveBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.ListBalancesWithCarryOver(ctx)
}

func (m *Memory) CreateBalance(ctx context.Context, b domain.LeaveBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.CreateBalance(ctx, b)
}

func (m *Memory) UpdateBalance(ctx context.Context, b domain.LeaveBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.UpdateBalance(ctx, b)
}

func (m *Memory) AppendTransaction(ctx context.Context, tx domain.LeaveTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.AppendTransaction(ctx, tx)
}

func (m *Memory) ListTransactions(ctx context.Context, balanceID string) ([]domain.LeaveTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.ListTransactions(ctx, balanceID)
}

func (m *Memory) GetLeave(ctx context.Context, id string) (*domain.Leave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.GetLeave(ctx, id)
}

func (m *Memory) CreateLeave(ctx context.Context, l domain.Leave) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.CreateLeave(ctx, l)
}

func (m *Memory) UpdateLeave(ctx context.Context, l domain.Leave) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.UpdateLeave(ctx, l)
}

func (m *Memory) IsHoliday(ctx context.Context, day domain.Date, tenantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.IsHoliday(ctx, day, tenantID)
}

func (m *Memory) SaveTenant(ctx context.Context, t domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.SaveTenant(ctx, t)
}

func (m *Memory) SaveEmployee(ctx context.Context, e domain.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.SaveEmployee(ctx, e)
}

func (m *Memory) SaveShift(ctx context.Context, s domain.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.SaveShift(ctx, s)
}

func (m *Memory) SaveLeaveType(ctx context.Context, lt domain.LeaveType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.SaveLeaveType(ctx, lt)
}

func (m *Memory) SaveLeavePolicy(ctx context.Context, p domain.LeavePolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.SaveLeavePolicy(ctx, p)
}

func (m *Memory) SaveHoliday(ctx context.Context, h domain.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.SaveHoliday(ctx, h)
}

func (m *Memory) ListHolidays(ctx context.Context, tenantID string) ([]domain.Holiday, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.ListHolidays(ctx, tenantID)
}

// Lock is a no-op outside WithTx as well; single calls are already atomic.
func (m *Memory) Lock(context.Context, string) error { return nil }

// =============================================================================
// DATASET - Unlocked implementation used directly inside WithTx
// =============================================================================

type dataset struct {
	tenants      map[string]domain.Tenant
	employees    map[string]domain.Employee
	shifts       map[string]domain.Shift
	attendance   map[string]domain.Attendance
	leaveTypes   map[string]domain.LeaveType
	policies     map[string]domain.LeavePolicy
	balances     map[string]domain.LeaveBalance
	transactions []domain.LeaveTransaction
	leaves       map[string]domain.Leave
	holidays     map[string]domain.Holiday
}

func newDataset() *dataset {
	return &dataset{
		tenants:    make(map[string]domain.Tenant),
		employees:  make(map[string]domain.Employee),
		shifts:     make(map[string]domain.Shift),
		attendance: make(map[string]domain.Attendance),
		leaveTypes: make(map[string]domain.LeaveType),
		policies:   make(map[string]domain.LeavePolicy),
		balances:   make(map[string]domain.LeaveBalance),
		leaves:     make(map[string]domain.Leave),
		holidays:   make(map[string]domain.Holiday),
	}
}

func (d *dataset) snapshot() *dataset {
	s := &dataset{
		tenants:      copyMap(d.tenants),
		employees:    copyMap(d.employees),
		shifts:       copyMap(d.shifts),
		attendance:   copyMap(d.attendance),
		leaveTypes:   copyMap(d.leaveTypes),
		policies:     copyMap(d.policies),
		balances:     make(map[string]domain.LeaveBalance, len(d.balances)),
		transactions: append([]domain.LeaveTransaction(nil), d.transactions...),
		leaves:       copyMap(d.leaves),
		holidays:     copyMap(d.holidays),
	}
	for k, v := range d.balances {
		s.balances[k] = v.Clone()
	}
	return s
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *dataset) Lock(context.Context, string) error { return nil }

func (d *dataset) GetTenant(_ context.Context, id string) (*domain.Tenant, error) {
	t, ok := d.tenants[id]
	if !ok {
		return nil, domain.NewNotFound("tenant", id)
	}
	return &t, nil
}

func (d *dataset) GetEmployee(_ context.Context, id string) (*domain.Employee, error) {
	e, ok := d.employees[id]
	if !ok {
		return nil, domain.NewNotFound("employee", id)
	}
	return &e, nil
}

func (d *dataset) GetShift(_ context.Context, id string) (*domain.Shift, error) {
	s, ok := d.shifts[id]
	if !ok {
		return nil, domain.NewNotFound("shift", id)
	}
	return &s, nil
}

func (d *dataset) FindAttendance(_ context.Context, employeeID string, day domain.Date) (*domain.Attendance, error) {
	for _, a := range d.attendance {
		if a.EmployeeID == employeeID && a.WorkDate.Equal(day) {
			return &a, nil
		}
	}
	return nil, nil
}

func (d *dataset) CreateAttendance(ctx context.Context, a domain.Attendance) error {
	if existing, _ := d.FindAttendance(ctx, a.EmployeeID, a.WorkDate); existing != nil {
		return domain.NewStateConflict(domain.ConflictAlreadyCheckedIn, "You have already checked in today")
	}
	d.attendance[a.ID] = a
	return nil
}

func (d *dataset) UpdateAttendance(_ context.Context, a domain.Attendance) error {
	if _, ok := d.attendance[a.ID]; !ok {
		return domain.NewNotFound("attendance", a.ID)
	}
	d.attendance[a.ID] = a
	return nil
}

func (d *dataset) GetLeaveType(_ context.Context, id string) (*domain.LeaveType, error) {
	lt, ok := d.leaveTypes[id]
	if !ok {
		return nil, domain.NewNotFound("leave_type", id)
	}
	return &lt, nil
}

func (d *dataset) FindLeaveTypeByCode(_ context.Context, tenantID, code string) (*domain.LeaveType, error) {
	code = domain.NormalizeLeaveCode(code)
	for _, lt := range d.leaveTypes {
		if lt.TenantID == tenantID && lt.Code == code {
			return &lt, nil
		}
	}
	return nil, nil
}

func (d *dataset) ListLeaveTypes(_ context.Context, tenantID string, activeOnly bool) ([]domain.LeaveType, error) {
	var out []domain.LeaveType
	for _, lt := range d.leaveTypes {
		if lt.TenantID != tenantID || (activeOnly && !lt.Active) {
			continue
		}
		out = append(out, lt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (d *dataset) CreateLeaveType(ctx context.Context, lt domain.LeaveType) error {
	lt.Code = domain.NormalizeLeaveCode(lt.Code)
	if existing, _ := d.FindLeaveTypeByCode(ctx, lt.TenantID, lt.Code); existing != nil {
		return domain.NewStateConflict(domain.ConflictDuplicateRecord, "leave type code already exists: "+lt.Code)
	}
	d.leaveTypes[lt.ID] = lt
	return nil
}

func (d *dataset) SaveLeaveType(ctx context.Context, lt domain.LeaveType) error {
	lt.Code = domain.NormalizeLeaveCode(lt.Code)
	if existing, _ := d.FindLeaveTypeByCode(ctx, lt.TenantID, lt.Code); existing != nil && existing.ID != lt.ID {
		return domain.NewStateConflict(domain.ConflictDuplicateRecord, "leave type code already exists: "+lt.Code)
	}
	d.leaveTypes[lt.ID] = lt
	return nil
}

func (d *dataset) FindPolicy(_ context.Context, tenantID string, year int) (*domain.LeavePolicy, error) {
	for _, p := range d.policies {
		if p.TenantID == tenantID && p.Year == year && p.Active {
			return &p, nil
		}
	}
	return nil, nil
}

func (d *dataset) FindPolicyCovering(_ context.Context, tenantID string, day domain.Date) (*domain.LeavePolicy, error) {
	for _, p := range d.policies {
		if p.TenantID == tenantID && p.Active && p.Window.Contains(day) {
			return &p, nil
		}
	}
	return nil, nil
}

func (d *dataset) SaveLeavePolicy(_ context.Context, p domain.LeavePolicy) error {
	for _, other := range d.policies {
		if other.ID != p.ID && other.TenantID == p.TenantID && other.Year == p.Year {
			return domain.NewStateConflict(domain.ConflictDuplicateRecord, "policy already exists for year")
		}
	}
	d.policies[p.ID] = p
	return nil
}

func (d *dataset) GetBalance(_ context.Context, id string) (*domain.LeaveBalance, error) {
	b, ok := d.balances[id]
	if !ok {
		return nil, domain.NewNotFound("balance", id)
	}
	b = b.Clone()
	return &b, nil
}

func (d *dataset) FindBalance(_ context.Context, key domain.BalanceKey) (*domain.LeaveBalance, error) {
	for _, b := range d.balances {
		if b.Key() == key {
			b = b.Clone()
			return &b, nil
		}
	}
	return nil, nil
}

func (d *dataset) ListBalances(_ context.Context, employeeID string, year int) ([]domain.LeaveBalance, error) {
	var out []domain.LeaveBalance
	for _, b := range d.balances {
		if b.EmployeeID == employeeID && b.PolicyYear == year {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeaveTypeID < out[j].LeaveTypeID })
	return out, nil
}

func (d *dataset) ListBalancesWithCarryOver(_ context.Context) ([]domain.LeaveBalance, error) {
	var out []domain.LeaveBalance
	for _, b := range d.balances {
		if b.CarriedOver.IsPositive() && b.CarryOverExpiredAt == nil {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *dataset) CreateBalance(ctx context.Context, b domain.LeaveBalance) error {
	if existing, _ := d.FindBalance(ctx, b.Key()); existing != nil {
		return domain.NewStateConflict(domain.ConflictDuplicateBalance, "balance already initialized")
	}
	d.balances[b.ID] = b.Clone()
	return nil
}

func (d *dataset) UpdateBalance(_ context.Context, b domain.LeaveBalance) error {
	if _, ok := d.balances[b.ID]; !ok {
		return domain.NewNotFound("balance", b.ID)
	}
	d.balances[b.ID] = b.Clone()
	return nil
}

func (d *dataset) AppendTransaction(_ context.Context, tx domain.LeaveTransaction) error {
	for _, existing := range d.transactions {
		if existing.ID == tx.ID {
			return domain.NewStateConflict(domain.ConflictDuplicateRecord, "transaction already recorded")
		}
	}
	d.transactions = append(d.transactions, tx.Clone())
	return nil
}

func (d *dataset) ListTransactions(_ context.Context, balanceID string) ([]domain.LeaveTransaction, error) {
	var out []domain.LeaveTransaction
	for _, tx := range d.transactions {
		if tx.BalanceID == balanceID {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

func (d *dataset) GetLeave(_ context.Context, id string) (*domain.Leave, error) {
	l, ok := d.leaves[id]
	if !ok {
		return nil, domain.NewNotFound("leave", id)
	}
	return &l, nil
}

func (d *dataset) CreateLeave(_ context.Context, l domain.Leave) error {
	if _, ok := d.leaves[l.ID]; ok {
		return domain.NewStateConflict(domain.ConflictDuplicateRecord, "leave already exists")
	}
	d.leaves[l.ID] = l
	return nil
}

func (d *dataset) UpdateLeave(_ context.Context, l domain.Leave) error {
	if _, ok := d.leaves[l.ID]; !ok {
		return domain.NewNotFound("leave", l.ID)
	}
	d.leaves[l.ID] = l
	return nil
}

func (d *dataset) IsHoliday(_ context.Context, day domain.Date, tenantID string) (bool, error) {
	for _, h := range d.holidays {
		if h.Matches(day, tenantID) {
			return true, nil
		}
	}
	return false, nil
}

func (d *dataset) SaveTenant(_ context.Context, t domain.Tenant) error {
	d.tenants[t.ID] = t
	return nil
}

func (d *dataset) SaveEmployee(_ context.Context, e domain.Employee) error {
	d.employees[e.ID] = e
	return nil
}

func (d *dataset) SaveShift(_ context.Context, s domain.Shift) error {
	d.shifts[s.ID] = s
	return nil
}

func (d *dataset) SaveHoliday(_ context.Context, h domain.Holiday) error {
	d.holidays[h.ID] = h
	return nil
}

func (d *dataset) ListHolidays(_ context.Context, tenantID string) ([]domain.Holiday, error) {
	var out []domain.Holiday
	for _, h := range d.holidays {
		if h.TenantID == tenantID || h.TenantID == "" {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
