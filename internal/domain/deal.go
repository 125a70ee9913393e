package domain

import (
	"slices"
	"strings"
)

// Slot names one field of the deal draft awaiting a value.
type Slot int

const (
	SlotTitle Slot = iota
	SlotCompany
	SlotAmount
	SlotStage
	SlotCloseDate
	SlotContacts
	// SlotNone means every slot is filled.
	SlotNone
)

// SlotOrder is the fixed order in which slots are filled.
var SlotOrder = []Slot{SlotTitle, SlotCompany, SlotAmount, SlotStage, SlotCloseDate, SlotContacts}

func (s Slot) String() string {
	switch s {
	case SlotTitle:
		return "title"
	case SlotCompany:
		return "company"
	case SlotAmount:
		return "amount"
	case SlotStage:
		return "stage"
	case SlotCloseDate:
		return "close_date"
	case SlotContacts:
		return "contacts"
	default:
		return "none"
	}
}

// Company is the subset of a CRM company record the assistant needs.
type Company struct {
	ID   CompanyRef
	Name string
}

// DealDraft accumulates slot values. Values are replaced, never edited in
// place: every With* method returns a modified copy.
type DealDraft struct {
	Title     string
	Company   CompanyRef
	Amount    *float64
	Stage     string
	CloseDate string
	// Contacts is nil while pending; an empty, non-nil slice is a filled slot.
	Contacts []int
}

// Pending reports whether the slot still needs a value.
func (d DealDraft) Pending(s Slot) bool {
	switch s {
	case SlotTitle:
		return strings.TrimSpace(d.Title) == ""
	case SlotCompany:
		return d.Company == ""
	case SlotAmount:
		return d.Amount == nil
	case SlotStage:
		return strings.TrimSpace(d.Stage) == ""
	case SlotCloseDate:
		return strings.TrimSpace(d.CloseDate) == ""
	case SlotContacts:
		return d.Contacts == nil
	default:
		return false
	}
}

// NextSlot scans SlotOrder for the first pending slot.
func (d DealDraft) NextSlot() Slot {
	for _, s := range SlotOrder {
		if d.Pending(s) {
			return s
		}
	}
	return SlotNone
}

func (d DealDraft) WithTitle(v string) DealDraft {
	d.Title = v
	return d
}

func (d DealDraft) WithCompany(v CompanyRef) DealDraft {
	d.Company = v
	return d
}

func (d DealDraft) WithAmount(v float64) DealDraft {
	d.Amount = &v
	return d
}

func (d DealDraft) WithStage(v string) DealDraft {
	d.Stage = v
	return d
}

func (d DealDraft) WithCloseDate(v string) DealDraft {
	d.CloseDate = v
	return d
}

func (d DealDraft) WithContacts(v []int) DealDraft {
	if v == nil {
		v = []int{}
	}
	d.Contacts = slices.Clone(v)
	return d
}

// Request builds the create-deal payload from the draft and the given contacts.
func (d DealDraft) Request(contacts []int) DealRequest {
	var amount float64
	if d.Amount != nil {
		amount = *d.Amount
	}
	if contacts == nil {
		contacts = []int{}
	}
	return DealRequest{
		Title:     d.Title,
		Company:   d.Company,
		Amount:    amount,
		Stage:     d.Stage,
		CloseDate: d.CloseDate,
		Contacts:  slices.Clone(contacts),
	}
}

// DealRequest is the complete record submitted to the CRM.
type DealRequest struct {
	Title     string
	Company   CompanyRef
	Amount    float64
	Stage     string
	CloseDate string
	Contacts  []int
}

// CreatedDeal is what the CRM returns for a successful creation.
type CreatedDeal struct {
	ID    string
	Title string
}
