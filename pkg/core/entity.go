package core

// EntityType is the network object class as reported by native code.
type EntityType uint8

const (
	EntityAutomobile EntityType = iota
	EntityBike
	EntityBoat
	EntityDoor
	EntityHeli
	EntityObject
	EntityPed
	EntityPickup
	EntityPickupPlacement
	EntityPlane
	EntitySubmarine
	EntityPlayer
	EntityTrailer
	EntityTrain
)

var entityTypeNames = [...]string{
	"Automobile", "Bike", "Boat", "Door", "Heli", "Object", "Ped",
	"Pickup", "PickupPlacement", "Plane", "Submarine", "Player", "Trailer", "Train",
}

func (t EntityType) String() string {
	if int(t) < len(entityTypeNames) {
		return entityTypeNames[t]
	}
	return "Unknown"
}

// CarriesOccupants reports whether objects of this type can hold other
// networked entities whose ownership must follow the carrier.
func (t EntityType) CarriesOccupants() bool {
	switch t {
	case EntityAutomobile, EntityBike, EntityBoat, EntityHeli, EntityPlane,
		EntitySubmarine, EntityTrailer, EntityTrain:
		return true
	}
	return false
}

// Vector3 is a world position in game units.
type Vector3 struct {
	X float32
	Y float32
	Z float32
}

// ObjectInfo describes one tracked network object and who holds it.
type ObjectInfo struct {
	ObjectID   uint16 `json:"objectId"`
	Type       string `json:"type"`
	OwnerNetID uint16 `json:"ownerNetId"`
	Local      bool   `json:"local"`
	// Resolved is false when the owner could not be mapped to a player.
	Resolved bool `json:"resolved"`
}
