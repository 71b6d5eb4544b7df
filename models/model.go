package models

// ModelFamily is the label space a model indexes into.
type ModelFamily string

const (
	// ModelFamilyCOCO is the 80 COCO classes plus background.
	ModelFamilyCOCO ModelFamily = "coco"
	// ModelFamilyYOLO is the 80 COCO classes without background.
	ModelFamilyYOLO ModelFamily = "yolo"
	// ModelFamilyCustom is a label file supplied with the model.
	ModelFamilyCustom ModelFamily = "custom"
)
