package validators

import "go.mongodb.org/mongo-driver/bson"

var HoldValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"unit_id",
			"issued_at",
			"expires_at",
			"state",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id":        bson.M{"bsonType": "string"},
			"unit_id":    bson.M{"bsonType": "string"},
			"holder_id":  bson.M{"bsonType": "string", "maxLength": 128},
			"issued_at":  bson.M{"bsonType": "date"},
			"expires_at": bson.M{"bsonType": "date"},
			"closed_at":  bson.M{"bsonType": []string{"date", "null"}},

			"state": bson.M{
				"bsonType": "string",
				"enum": []string{
					"ACTIVE",
					"RELEASED",
					"EXPIRED",
					"CONSUMED",
				},
			},
		},
	},
}
