package pawn

import (
	"fmt"
	"math/big"
	"time"

	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

const (
	msgNotPending       = "Order is not PENDING"
	msgNotStaked        = "Order has not been STAKED"
	msgNotPayed         = "Order has not been PAYED"
	msgStakesLocked     = "Pawner has shipped, stakes are locked"
	msgPawnerHashSet    = "Pawner shipping hash already assigned"
	msgOwnerHashSet     = "Owner shipping hash already assigned"
	msgPawnerNotShipped = "Pawner has not shipped"
	msgOwnerNotShipped  = "Owner has not shipped"
	msgAlreadyConfirmed = "Shipping already confirmed, loan is running"
	msgLoanNotStarted   = "Loan has not started"
	msgStakeReceived    = "Stake already received"
)

// machine applies one operation to working copies of an order, its escrow and the pool.
type machine struct {
	order      *Order
	escrow     *Escrow
	ledger     *ledger
	now        time.Time
	settlement Settlement
	events     []Event
	dirty      bool
}

func (m *machine) emit(typ EventType, amount Amount) {
	var id uint64
	status := Status("")
	if m.order != nil {
		id = m.order.ID
		status = m.order.Status
	}
	m.events = append(m.events, NewEvent(typ, id, status, amount, m.now))
}

// setStatus moves the order and its escrow forward together.
func (m *machine) setStatus(s Status) {
	m.order.Status = s
	if m.escrow != nil {
		m.escrow.Status = s
		m.escrow.UpdatedAt = m.now
	}
	m.order.UpdatedAt = m.now
	m.dirty = true
}

func (m *machine) status() Status {
	if m.escrow != nil {
		return m.escrow.Status
	}
	return m.order.Status
}

func (m *machine) invalid(msg string) error {
	return errorbank.InvalidState(msg,
		errorbank.WithDetail("order_id", m.order.ID),
		errorbank.WithDetail("status", string(m.status())),
	)
}

func (m *machine) accept(address string) error {
	if m.order.Status != StatusPending {
		return m.invalid(msgNotPending)
	}
	tier, err := LookupTier(m.order.Grade)
	if err != nil {
		return err
	}

	m.escrow = &Escrow{
		OrderID:         m.order.ID,
		Address:         address,
		Price:           m.order.Price,
		OwnerStake:      m.order.Price.Mul(2),
		PawnerStake:     m.order.Price,
		InterestPercent: tier.InterestPercent,
		LoanLength:      tier.LoanLength,
		Status:          StatusAccepted,
		CreatedAt:       m.now,
		UpdatedAt:       m.now,
	}
	m.ledger.escrow = m.escrow

	if err := m.ledger.fundOwnerStake(m.escrow.OwnerStake); err != nil {
		return err
	}
	m.setStatus(StatusAccepted)
	m.emit(EventOrderAccepted, m.escrow.OwnerStake)
	return nil
}

func (m *machine) deposit(from string, amount Amount) error {
	switch {
	case m.escrow.Status == StatusAccepted:
		if err := m.ledger.deposit(from, amount); err != nil {
			return err
		}
		m.escrow.PawnerDeposited = m.escrow.PawnerDeposited.Add(amount)
		m.dirty = true
		m.emitDeposit(from, amount)
		if m.escrow.Balance.Cmp(m.escrow.StakeTarget()) >= 0 {
			m.setStatus(StatusStaked)
			m.emit(EventOrderStaked, m.escrow.Balance)
		}
		return nil

	case m.escrow.Status == StatusStaked && m.escrow.ClockRunning():
		if err := m.ledger.deposit(from, amount); err != nil {
			return err
		}
		m.escrow.Repaid = m.escrow.Repaid.Add(amount)
		m.escrow.RepayAmount = RequiredRepayment(*m.escrow, m.now)
		m.dirty = true
		m.emitDeposit(from, amount)
		if m.escrow.Repaid.Cmp(m.escrow.RepayAmount) >= 0 {
			m.setStatus(StatusPayed)
			m.emit(EventOrderPayed, m.escrow.Repaid)
		}
		return nil

	case m.escrow.Status == StatusStaked:
		return m.invalid(msgStakeReceived)

	default:
		return m.invalid(fmt.Sprintf("Escrow does not accept deposits while %s", m.escrow.Status))
	}
}

func (m *machine) emitDeposit(from string, amount Amount) {
	m.emit(EventOrderDeposit, amount)
	m.events[len(m.events)-1].Party = from
}

func (m *machine) assignPawnerShippingHash(trackingNumber *big.Int) error {
	if m.status() != StatusStaked {
		return m.invalid(msgNotStaked)
	}
	if m.escrow.PawnerShippingHash.IsSet() {
		return m.invalid(msgPawnerHashSet)
	}
	hash, err := Commit(trackingNumber)
	if err != nil {
		return err
	}
	m.escrow.PawnerShippingHash = hash
	m.order.PawnerShippingHash = hash
	m.setStatus(StatusStaked)
	m.emit(EventPawnerShippingAssigned, Amount{})
	return nil
}

func (m *machine) ownerWithdrawStakeEarly() error {
	switch m.status() {
	case StatusAccepted, StatusStaked:
	default:
		return m.invalid(fmt.Sprintf("Stakes cannot be withdrawn while %s", m.status()))
	}
	if m.escrow.PawnerShippingHash.IsSet() {
		return m.invalid(msgStakesLocked)
	}
	return m.expire()
}

func (m *machine) deleteOrder() error {
	if m.escrow == nil || m.status() != StatusStaked {
		return m.invalid(msgNotStaked)
	}
	return m.expire()
}

func (m *machine) expire() error {
	split := m.settlement.Expire(*m.escrow)
	if err := m.ledger.settle(split); err != nil {
		return err
	}
	m.setStatus(StatusExpired)
	if !split.Pawner.IsZero() {
		m.emit(EventPawnerPayout, split.Pawner)
	}
	m.emit(EventOrderExpired, split.Pool)
	return nil
}

func (m *machine) ownerConfirmShipping() error {
	if m.status() != StatusStaked {
		return m.invalid(msgNotStaked)
	}
	if !m.escrow.PawnerShippingHash.IsSet() {
		return m.invalid(msgPawnerNotShipped)
	}
	if m.escrow.ClockRunning() {
		return m.invalid(msgAlreadyConfirmed)
	}

	m.escrow.StartDate = m.now.Unix()
	m.order.StartDate = m.escrow.StartDate
	m.escrow.RepayAmount = m.escrow.Price
	if err := m.ledger.release(m.escrow.Price, PartyPawner); err != nil {
		return err
	}
	m.setStatus(StatusStaked)
	m.emit(EventLoanStarted, m.escrow.Price)
	m.emit(EventPawnerPayout, m.escrow.Price)
	return nil
}

func (m *machine) checkRepayAmount() (Amount, error) {
	switch {
	case m.status() == StatusStaked && m.escrow.ClockRunning():
		m.escrow.RepayAmount = RequiredRepayment(*m.escrow, m.now)
		m.escrow.UpdatedAt = m.now
		m.dirty = true
		m.emit(EventLoanRepayAmount, m.escrow.RepayAmount)
		return m.escrow.RepayAmount, nil
	case m.status() == StatusPayed || m.status() == StatusCompleted:
		return m.escrow.RepayAmount, nil
	default:
		return Amount{}, m.invalid(msgLoanNotStarted)
	}
}

func (m *machine) assignOwnerShippingHash(trackingNumber *big.Int) error {
	if m.status() != StatusPayed {
		return m.invalid(msgNotPayed)
	}
	if m.escrow.OwnerShippingHash.IsSet() {
		return m.invalid(msgOwnerHashSet)
	}
	hash, err := Commit(trackingNumber)
	if err != nil {
		return err
	}
	m.escrow.OwnerShippingHash = hash
	m.order.OwnerShippingHash = hash
	m.setStatus(StatusPayed)
	m.emit(EventOwnerShippingAssigned, Amount{})
	return nil
}

func (m *machine) pawnerConfirmShipping() error {
	if m.status() != StatusPayed {
		return m.invalid(msgNotPayed)
	}
	if !m.escrow.OwnerShippingHash.IsSet() {
		return m.invalid(msgOwnerNotShipped)
	}
	split := m.settlement.Complete(*m.escrow)
	if err := m.ledger.settle(split); err != nil {
		return err
	}
	m.setStatus(StatusCompleted)
	if !split.Pawner.IsZero() {
		m.emit(EventPawnerPayout, split.Pawner)
	}
	m.emit(EventOrderCompleted, split.Pool)
	return nil
}
