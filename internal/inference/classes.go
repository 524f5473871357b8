package inference

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// FallbackLabels are sampled in degraded mode when no class list is available
var FallbackLabels = []string{
	"Aphids", "Spider Mites", "Whiteflies", "Mealybugs",
	"Scale Insects", "Thrips", "Leaf Miners", "Caterpillars",
	"Termite", "Grasshopper", "Whitefly", "aphids",
	"army_worm", "corn_borer", "rice_leafhopper", "beetle",
}

// LoadClassList reads one label per line, skipping blank lines. Order is
// significant: line i names output i of the model.
func LoadClassList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open class list: %w", err)
	}
	defer file.Close()

	var classes []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		label := strings.TrimSpace(scanner.Text())
		if label == "" {
			continue
		}
		classes = append(classes, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read class list: %w", err)
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("class list %s is empty", path)
	}
	return classes, nil
}
