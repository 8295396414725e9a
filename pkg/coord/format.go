package coord

import "fmt"

func formatCoord[T Number](c Coord[T]) string {
	if c.IsInterval {
		return fmt.Sprintf("[%v,%v]", c.Lo, c.Hi)
	}
	return fmt.Sprintf("%v", c.Lo)
}
