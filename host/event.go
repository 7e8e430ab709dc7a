package host

// EventKind enumerates host notifications.
type EventKind int

const (
	TabCreated EventKind = iota + 1
	TabUpdated
	TabActivated
	ActionClicked
	MenuClicked
)

func (k EventKind) String() string {
	switch k {
	case TabCreated:
		return "tab_created"
	case TabUpdated:
		return "tab_updated"
	case TabActivated:
		return "tab_activated"
	case ActionClicked:
		return "action_clicked"
	case MenuClicked:
		return "menu_clicked"
	}
	return "unknown"
}

// StatusComplete is the TabUpdated status the core reacts to.
const StatusComplete = "complete"

// Event is one host notification. Which fields are set depends on Kind:
//
//	TabCreated     Tab (the new tab)
//	TabUpdated     Tab, Status
//	TabActivated   Tab.ID
//	ActionClicked  Tab
//	MenuClicked    Tab (source tab), MenuItemID, LinkURL
type Event struct {
	Kind       EventKind
	Tab        TabRef
	Status     string
	MenuItemID string
	LinkURL    string
}
