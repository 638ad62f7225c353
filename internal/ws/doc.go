// Package ws expone el chat sobre WebSocket. Cada conexion se registra en la
// SessionRegistry, se suscribe al bus de difusion y entrega sus mensajes al
// router; nunca se envian eventos directo a otras conexiones locales, todo
// pasa por el bus para que los demas procesos tambien los vean.
package ws
