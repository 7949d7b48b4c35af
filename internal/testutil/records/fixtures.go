package records

import "github.com/Veraticus/parcel/internal/model"

// Fixture is a predefined set of records for a test scenario.
type Fixture interface {
	Name() string
	Clients() []model.ClientFields
	Properties() []model.PropertyFields
}

type fixture struct {
	name       string
	clients    []model.ClientFields
	properties []model.PropertyFields
}

func (f *fixture) Name() string                       { return f.name }
func (f *fixture) Clients() []model.ClientFields      { return f.clients }
func (f *fixture) Properties() []model.PropertyFields { return f.properties }

// Predefined fixtures.
var (
	// FixtureClients holds two clients with distinct contact details.
	FixtureClients = &fixture{
		name: "Clients",
		clients: []model.ClientFields{
			{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", Phone: "(555) 111-2222"},
			{FirstName: "John", LastName: "Roe", Email: "john@example.com"},
		},
	}

	// FixtureListing holds one client and one listed property.
	FixtureListing = &fixture{
		name: "Listing",
		clients: []model.ClientFields{
			{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"},
		},
		properties: []model.PropertyFields{
			{Address: "12 Oak St", City: "Springfield", State: "IL", Zip: "62701", Price: 350000},
		},
	}
)
