//
//
package dispatch

import (
	"math"
	"time"
)

// Order is a pending delivery order on the map.
type Order struct {
	ID string  `yaml:"id" json:"id"`
	X  float64 `yaml:"x" json:"x"`
	Y  float64 `yaml:"y" json:"y"`
}

// Rider is an online rider on the map.
type Rider struct {
	ID     string  `yaml:"id" json:"id"`
	Name   string  `yaml:"name" json:"name"`
	Rating float64 `yaml:"rating" json:"rating"`
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
}

// MapSnapshot is the poll-path view of the simulation.
type MapSnapshot struct {
	Orders         []Order `json:"orders"`
	Riders         []Rider `json:"riders"`
	LatestDispatch string  `json:"latest_dispatch,omitempty"`
}

// Dispatch is the outcome of one dispatch attempt.
type Dispatch struct {
	OrderID   string    `json:"orderId"`
	RiderID   string    `json:"riderId,omitempty"`
	RiderName string    `json:"riderName,omitempty"`
	Score     float64   `json:"score,omitempty"`
	Distance  float64   `json:"distance,omitempty"`
	Assigned  bool      `json:"assigned"`
	Restarted bool      `json:"restarted,omitempty"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Distance is the Euclidean distance between an order and a rider.
func Distance(o Order, r Rider) float64 {
	return math.Hypot(o.X-r.X, o.Y-r.Y)
}

// Score rates rider r for order o. Higher is better.
func Score(o Order, r Rider) float64 {
	return (100 - Distance(o, r)) + r.Rating*10
}

// BestRider returns the highest scoring rider for o. Ties go to the rider
// listed first. ok is false when riders is empty.
func BestRider(o Order, riders []Rider) (best Rider, score float64, ok bool) {
	for i, r := range riders {
		s := Score(o, r)
		if i == 0 || s > score {
			best, score = r, s
		}
	}
	return best, score, len(riders) > 0
}
