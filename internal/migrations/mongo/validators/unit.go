package validators

import "go.mongodb.org/mongo-driver/bson"

var integer = []string{"int", "long"}

var UnitValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"resource_id",
			"provider_id",
			"start",
			"end",
			"capacity",
			"remaining",
			"version",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"resource_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"provider_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"category": bson.M{
				"bsonType":  "string",
				"maxLength": 64,
			},

			"start": bson.M{"bsonType": "date"},
			"end":   bson.M{"bsonType": "date"},

			"capacity": bson.M{
				"bsonType": integer,
				"minimum":  1,
				"maximum":  10000,
			},

			// remaining is never negative.
			"remaining": bson.M{
				"bsonType": integer,
				"minimum":  0,
			},

			"version": bson.M{
				"bsonType": integer,
				"minimum":  1,
			},

			"retired": bson.M{"bsonType": "bool"},
		},
	},
}
