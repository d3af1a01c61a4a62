package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// DiseaseClass is one of the nine lung-disease categories produced by the classifier.
// The numeric value is the index of the class in the model's output vector.
type DiseaseClass int

const (
	DiseaseNormal DiseaseClass = iota
	DiseasePneumonia
	DiseaseHighDensity
	DiseaseLowDensity
	DiseaseObstructive
	DiseaseInfectious
	DiseaseEncapsulated
	DiseaseMediastinum
	DiseaseThorax

	// NumDiseaseClasses is the size of the model output vector.
	NumDiseaseClasses = int(DiseaseThorax) + 1
)

var diseaseLabels = [NumDiseaseClasses]string{
	DiseaseNormal:       "00 Anatomia Normal",
	DiseasePneumonia:    "01 Processos Inflamatórios Pulmonares (Pneumonia)",
	DiseaseHighDensity:  "02 Maior Densidade (Derrame Pleural, Consolidação Atelectasica, Hidrotorax, Empiema)",
	DiseaseLowDensity:   "03 Menor Densidade (Pneumotorax, Pneumomediastino, Pneumoperitonio)",
	DiseaseObstructive:  "04 Doenças Pulmonares Obstrutivas (Enfisema, Broncopneumonia, Bronquiectasia, Embolia)",
	DiseaseInfectious:   "05 Doenças Infecciosas Degenerativas (Tuberculose, Sarcoidose, Proteinose, Fibrose)",
	DiseaseEncapsulated: "06 Lesões Encapsuladas (Abscessos, Nódulos, Cistos, Massas Tumorais, Metastases)",
	DiseaseMediastinum:  "07 Alterações de Mediastino (Pericardite, Malformações Arteriovenosas, Linfonodomegalias)",
	DiseaseThorax:       "08 Alterações do Tórax (Atelectasias, Malformações, Agenesia, Hipoplasias)",
}

var labelIndex = func() map[string]DiseaseClass {
	m := make(map[string]DiseaseClass, NumDiseaseClasses)
	for i, label := range diseaseLabels {
		m[label] = DiseaseClass(i)
	}
	return m
}()

// AllDiseaseClasses returns every class in model output order.
func AllDiseaseClasses() []DiseaseClass {
	classes := make([]DiseaseClass, NumDiseaseClasses)
	for i := range classes {
		classes[i] = DiseaseClass(i)
	}
	return classes
}

// DiseaseLabels returns the class labels in model output order.
func DiseaseLabels() []string {
	labels := make([]string, NumDiseaseClasses)
	copy(labels, diseaseLabels[:])
	return labels
}

// Valid reports whether c is one of the nine known classes.
func (c DiseaseClass) Valid() bool {
	return c >= 0 && int(c) < NumDiseaseClasses
}

// String returns the human-readable label used in API responses and storage.
func (c DiseaseClass) String() string {
	if !c.Valid() {
		return fmt.Sprintf("DiseaseClass(%d)", int(c))
	}
	return diseaseLabels[c]
}

// ParseDiseaseClass maps a stored label back to its class.
func ParseDiseaseClass(label string) (DiseaseClass, error) {
	c, ok := labelIndex[label]
	if !ok {
		return 0, fmt.Errorf("unknown disease class %q", label)
	}
	return c, nil
}

// MarshalJSON encodes the class as its label.
func (c DiseaseClass) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid disease class %d", int(c))
	}
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a label into a class.
func (c *DiseaseClass) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	parsed, err := ParseDiseaseClass(label)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements driver.Valuer so the label, not the index, is persisted.
func (c DiseaseClass) Value() (driver.Value, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid disease class %d", int(c))
	}
	return c.String(), nil
}

// Scan implements sql.Scanner.
func (c *DiseaseClass) Scan(value interface{}) error {
	var label string
	switch v := value.(type) {
	case string:
		label = v
	case []byte:
		label = string(v)
	default:
		return errors.New("failed to scan DiseaseClass")
	}
	parsed, err := ParseDiseaseClass(label)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
