package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"unit_id",
			"hold_id",
			"idempotency_key",
			"status",
			"unit_start",
			"unit_end",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id":     bson.M{"bsonType": "string"},
			"unit_id": bson.M{"bsonType": "string"},
			"hold_id": bson.M{"bsonType": "string"},

			"idempotency_key": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"CONFIRMED",
					"CANCELLED",
				},
			},

			"unit_start":        bson.M{"bsonType": "date"},
			"unit_end":          bson.M{"bsonType": "date"},
			"unit_version":      bson.M{"bsonType": integer},
			"created_at":        bson.M{"bsonType": "date"},
			"cancelled_at":      bson.M{"bsonType": []string{"date", "null"}},
			"cancel_reason":     bson.M{"bsonType": "string", "maxLength": 500},
			"capacity_restored": bson.M{"bsonType": "bool"},
		},
	},
}
