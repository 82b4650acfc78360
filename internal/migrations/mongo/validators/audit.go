package validators

import "go.mongodb.org/mongo-driver/bson"

var AuditValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"subject_type",
			"subject_id",
			"action",
			"actor",
			"timestamp",
			"next_state",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"subject_type": bson.M{
				"bsonType": "string",
				"enum":     []string{"unit", "hold", "booking"},
			},
			"subject_id": bson.M{"bsonType": "string"},
			"action":     bson.M{"bsonType": "string"},
			"actor":      bson.M{"bsonType": "string"},
			"timestamp":  bson.M{"bsonType": "date"},
			"next_state": bson.M{"bsonType": "string"},
		},
	},
}
