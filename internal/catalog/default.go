package catalog

import "github.com/ChenXin-2009/solmap-sub004/internal/orbit"

// Default returns the built-in catalog: the Sun plus the planets and Pluto
// with J2000 mean elements from JPL's approximate planetary positions
// (valid 1800 AD to 2050 AD). Mean anomaly and argument of periapsis are
// derived from the published mean longitude and longitude of perihelion.
func Default() []Entry {
	return []Entry{
		{Name: "Sun", Color: "#FDB813", IsSun: true},
		{Name: "Mercury", Color: "#B5B5B5", Elements: &orbit.Elements{
			A: 0.38709927, E: 0.20563593, I: 7.00497902,
			Node: 48.33076593, Peri: 29.12703035, M0: 174.79252722, Epoch: orbit.J2000,
		}},
		{Name: "Venus", Color: "#E8CDA2", Elements: &orbit.Elements{
			A: 0.72333566, E: 0.00677672, I: 3.39467605,
			Node: 76.67984255, Peri: 54.92262463, M0: 50.37663232, Epoch: orbit.J2000,
		}},
		{Name: "Earth", Color: "#2E86AB", Elements: &orbit.Elements{
			A: 1.00000261, E: 0.01671123, I: -0.00001531,
			Node: 0, Peri: 102.93768193, M0: 357.52688973, Epoch: orbit.J2000,
		}},
		{Name: "Mars", Color: "#C1440E", Elements: &orbit.Elements{
			A: 1.52371034, E: 0.09339410, I: 1.84969142,
			Node: 49.55953891, Peri: 286.4968315, M0: 19.39019754, Epoch: orbit.J2000,
		}},
		{Name: "Jupiter", Color: "#C88B3A", Elements: &orbit.Elements{
			A: 5.20288700, E: 0.04838624, I: 1.30439695,
			Node: 100.47390909, Peri: 274.25457074, M0: 19.66796068, Epoch: orbit.J2000,
		}},
		{Name: "Saturn", Color: "#E4D191", Elements: &orbit.Elements{
			A: 9.53667594, E: 0.05386179, I: 2.48599187,
			Node: 113.66242448, Peri: 338.93645383, M0: 317.35536592, Epoch: orbit.J2000,
		}},
		{Name: "Uranus", Color: "#7DE8E8", Elements: &orbit.Elements{
			A: 19.18916464, E: 0.04725744, I: 0.77263783,
			Node: 74.01692503, Peri: 96.93735127, M0: 142.28382821, Epoch: orbit.J2000,
		}},
		{Name: "Neptune", Color: "#3F54BA", Elements: &orbit.Elements{
			A: 30.06992276, E: 0.00859048, I: 1.77004347,
			Node: 131.78422574, Peri: 273.18053653, M0: 259.91520804, Epoch: orbit.J2000,
		}},
		{Name: "Pluto", Color: "#C9B29B", Elements: &orbit.Elements{
			A: 39.48211675, E: 0.24882730, I: 17.14001206,
			Node: 110.30393684, Peri: 113.76497945, M0: 14.86012204, Epoch: orbit.J2000,
		}},
	}
}
