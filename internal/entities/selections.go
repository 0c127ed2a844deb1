package entities

// palette colours generated options by their enum position.
var palette = []string{"#00a05a", "#FF165D", "#FF7F00", "#6A5ACD", "#1E90FF", "#FFD700", "#8B4513", "#2F4F4F"}

func colorAt(i int) string {
	return palette[i%len(palette)]
}

// SelectionOptions builds the options of a field.
//
// Booleans fall back to Yes/No. Enums append the enum values not already
// preselected, coloured by enum position unless the preselections are
// uncoloured.
func SelectionOptions(fieldType FieldType, preselected []Option, enumOptions []string) []Option {
	switch fieldType {
	case FieldBoolean:
		if len(preselected) > 0 {
			return preselected
		}
		return []Option{
			{Label: "Yes", Value: true, Color: colorAt(0)},
			{Label: "No", Value: false, Color: colorAt(1)},
		}
	case FieldSelectionEnum:
		out := make([]Option, 0, len(preselected)+len(enumOptions))
		seen := make(map[string]struct{}, len(preselected))
		colored := len(preselected) == 0
		for _, opt := range preselected {
			out = append(out, opt)
			if s, ok := opt.Value.(string); ok {
				seen[s] = struct{}{}
			}
			if opt.Color != "" {
				colored = true
			}
		}
		for i, value := range enumOptions {
			if _, dup := seen[value]; dup {
				continue
			}
			opt := Option{Label: humanize(value), Value: value}
			if colored {
				opt.Color = colorAt(i)
			}
			out = append(out, opt)
		}
		return out
	default:
		if preselected == nil {
			return []Option{}
		}
		return preselected
	}
}
