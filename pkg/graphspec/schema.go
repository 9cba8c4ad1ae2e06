package graphspec

// specSchema is the JSON Schema a graph spec document must satisfy before
// semantic validation runs.
const specSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "nodes"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "asset_type": {"type": "string", "enum": ["Source", "Patch", "Preset"]},
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1}
        }
      }
    },
    "connections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from", "to"],
        "properties": {
          "from": {"type": "string", "pattern": "^[^:]+:[^:]+$"},
          "to": {"type": "string", "pattern": "^[^:]+:[^:]+$"}
        }
      }
    },
    "inputs": {"$ref": "#/definitions/ioList"},
    "outputs": {"$ref": "#/definitions/ioList"},
    "defaults": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["node", "pin", "value"],
        "properties": {
          "node": {"type": "string", "minLength": 1},
          "pin": {"type": "string", "minLength": 1}
        }
      }
    }
  },
  "definitions": {
    "ioList": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`
