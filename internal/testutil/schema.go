package testutil

import (
	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/schema"
)

// Schema builds the descriptor set used across package tests: a small CRM
// shape with owner references, status/state options, an intersect entity
// and a local-time entity.
func Schema() *schema.Set {
	s := schema.NewSet()

	s.Add(&schema.EntityDescriptor{
		Name:              "account",
		PrimaryIDColumn:   "AccountId",
		PrimaryNameColumn: "Name",
		StateColumn:       "State",
		StatusColumn:      "Status",
		OwnerColumn:       "Owner",
	})
	mustAdd(s, "account", &schema.ColumnDescriptor{LogicalName: "AccountId", Kind: record.KindID, IsPrimaryID: true})
	mustAdd(s, "account", &schema.ColumnDescriptor{LogicalName: "Name", Kind: record.KindText, IsPrimaryName: true})
	mustAdd(s, "account", &schema.ColumnDescriptor{LogicalName: "AccountNumber", Kind: record.KindText})
	mustAdd(s, "account", &schema.ColumnDescriptor{LogicalName: "Description", Kind: record.KindMemo})
	mustAdd(s, "account", &schema.ColumnDescriptor{LogicalName: "Employees", Kind: record.KindInteger})
	mustAdd(s, "account", &schema.ColumnDescriptor{LogicalName: "Revenue", Kind: record.KindMoney})
	mustAdd(s, "account", &schema.ColumnDescriptor{LogicalName: "CreditLimit", Kind: record.KindDecimal})
	mustAdd(s, "account", &schema.ColumnDescriptor{LogicalName: "Score", Kind: record.KindDouble})
	mustAdd(s, "account", &schema.ColumnDescriptor{LogicalName: "DoNotEmail", Kind: record.KindBoolean})
	mustAdd(s, "account", &schema.ColumnDescriptor{LogicalName: "LastContacted", Kind: record.KindDateTime})
	mustAdd(s, "account", &schema.ColumnDescriptor{
		LogicalName: "Owner",
		Kind:        record.KindRef,
		RefTargets:  []string{"systemuser", "team"},
	})
	mustAdd(s, "account", &schema.ColumnDescriptor{
		LogicalName: "ParentAccount",
		Kind:        record.KindRef,
		RefTargets:  []string{"account"},
	})
	mustAdd(s, "account", &schema.ColumnDescriptor{
		LogicalName: "Category",
		Kind:        record.KindOption,
		Options: schema.NewOptionCatalog([]schema.OptionEntry{
			{Label: "Standard", Value: 1, State: -1},
			{Label: "Preferred", Value: 2, State: -1},
		}),
	})
	mustAdd(s, "account", &schema.ColumnDescriptor{
		LogicalName: "Channels",
		Kind:        record.KindOptionList,
		Options: schema.NewOptionCatalog([]schema.OptionEntry{
			{Label: "Email", Value: 1, State: -1},
			{Label: "Phone", Value: 2, State: -1},
			{Label: "Mail", Value: 3, State: -1},
		}),
	})
	mustAdd(s, "account", &schema.ColumnDescriptor{
		LogicalName: "State",
		Kind:        record.KindOption,
		Options: schema.NewOptionCatalog([]schema.OptionEntry{
			{Label: "Active", Value: 0, State: -1},
			{Label: "Inactive", Value: 1, State: -1},
		}),
	})
	mustAdd(s, "account", &schema.ColumnDescriptor{
		LogicalName: "Status",
		Kind:        record.KindOption,
		Options: schema.NewOptionCatalog([]schema.OptionEntry{
			{Label: "Active", Value: 1, State: 0},
			{Label: "Inactive", Value: 2, State: 1},
		}),
	})

	s.Add(&schema.EntityDescriptor{
		Name:              "systemuser",
		PrimaryIDColumn:   "SystemUserId",
		PrimaryNameColumn: "FullName",
	})
	mustAdd(s, "systemuser", &schema.ColumnDescriptor{LogicalName: "SystemUserId", Kind: record.KindID, IsPrimaryID: true})
	mustAdd(s, "systemuser", &schema.ColumnDescriptor{LogicalName: "FullName", Kind: record.KindText, IsPrimaryName: true})

	s.Add(&schema.EntityDescriptor{
		Name:              "team",
		PrimaryIDColumn:   "TeamId",
		PrimaryNameColumn: "TeamName",
	})
	mustAdd(s, "team", &schema.ColumnDescriptor{LogicalName: "TeamId", Kind: record.KindID, IsPrimaryID: true})
	mustAdd(s, "team", &schema.ColumnDescriptor{LogicalName: "TeamName", Kind: record.KindText, IsPrimaryName: true})

	s.Add(&schema.EntityDescriptor{
		Name:              "role",
		PrimaryIDColumn:   "RoleId",
		PrimaryNameColumn: "RoleName",
	})
	mustAdd(s, "role", &schema.ColumnDescriptor{LogicalName: "RoleId", Kind: record.KindID, IsPrimaryID: true})
	mustAdd(s, "role", &schema.ColumnDescriptor{LogicalName: "RoleName", Kind: record.KindText, IsPrimaryName: true})

	s.Add(&schema.EntityDescriptor{
		Name:            "teammembership",
		PrimaryIDColumn: "TeamMembershipId",
		IsIntersect:     true,
		IntersectSides: [2]schema.RefSide{
			{Entity: "systemuser", Column: "SystemUserId"},
			{Entity: "role", Column: "RoleId"},
		},
	})
	mustAdd(s, "teammembership", &schema.ColumnDescriptor{LogicalName: "TeamMembershipId", Kind: record.KindID, IsPrimaryID: true})
	mustAdd(s, "teammembership", &schema.ColumnDescriptor{LogicalName: "SystemUserId", Kind: record.KindID})
	mustAdd(s, "teammembership", &schema.ColumnDescriptor{LogicalName: "RoleId", Kind: record.KindID})

	s.Add(&schema.EntityDescriptor{
		Name:              "appointment",
		PrimaryIDColumn:   "AppointmentId",
		PrimaryNameColumn: "Subject",
		HasLocalTime:      true,
		TimeZoneColumn:    "TimeZone",
	})
	mustAdd(s, "appointment", &schema.ColumnDescriptor{LogicalName: "AppointmentId", Kind: record.KindID, IsPrimaryID: true})
	mustAdd(s, "appointment", &schema.ColumnDescriptor{LogicalName: "Subject", Kind: record.KindText, IsPrimaryName: true})
	mustAdd(s, "appointment", &schema.ColumnDescriptor{LogicalName: "StartsAt", Kind: record.KindDateTime})
	mustAdd(s, "appointment", &schema.ColumnDescriptor{LogicalName: "TimeZone", Kind: record.KindInteger})
	mustAdd(s, "appointment", &schema.ColumnDescriptor{
		LogicalName: "Attendees",
		Kind:        record.KindPartyList,
		PartyEntity: "systemuser",
	})

	return s
}

func mustAdd(s *schema.Set, entity string, c *schema.ColumnDescriptor) {
	if err := s.AddColumn(entity, c); err != nil {
		panic(err)
	}
}
