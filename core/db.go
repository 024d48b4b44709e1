package core

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// AllowedOrderings drops the orderings whose Field is not listed in allowed.
func AllowedOrderings(ords []DBOrdering, allowed ...string) []DBOrdering {
	clean := make([]DBOrdering, 0, len(ords))
	for _, ord := range ords {
		for _, field := range allowed {
			if ord.Field == field {
				clean = append(clean, ord)
				break
			}
		}
	}
	return clean
}
